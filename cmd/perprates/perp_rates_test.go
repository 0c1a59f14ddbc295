package perprates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDBMock(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// setupMockBinanceServer serves the 24hr ticker endpoint with a fixed last
// price, in the shape the real API returns (numbers as strings).
func setupMockBinanceServer(lastPrice string) *httptest.Server {
	handler := http.NewServeMux()
	handler.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		body := fmt.Sprintf(`{
			"symbol": "SOLUSDT",
			"lastPrice": %q,
			"bidPrice": %q,
			"askPrice": %q,
			"highPrice": %q,
			"lowPrice": %q,
			"volume": "148976.11",
			"closeTime": 1718000000000
		}`, lastPrice, lastPrice, lastPrice, lastPrice, lastPrice)
		_, err := w.Write([]byte(body))
		if err != nil {
			return
		}
	})
	return httptest.NewServer(handler)
}

func mockExchange(endpoint string) goex.API {
	return binance.NewWithConfig(&goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   endpoint,
	})
}

func TestPerpRatesIngestOnce(t *testing.T) {
	spotServer := setupMockBinanceServer("150.00")
	defer spotServer.Close()
	perpServer := setupMockBinanceServer("150.45")
	defer perpServer.Close()

	db, mock := setupDBMock(t)

	// Spot price, perp price, then the basis sample.
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "market_rates"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "market_rates"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "basis_samples"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	perp := PerpRates{
		Log: logrus.NewEntry(logrus.New()),
		DB:  db,
		Config: &Config{
			Symbol:       "SOL",
			Quote:        "USDT",
			SpotVenue:    "binance",
			PerpVenue:    "binance-perp",
			SpotContract: "SOL",
		},
		spotExchange: mockExchange(spotServer.URL),
		perpExchange: mockExchange(perpServer.URL),
	}

	require.NoError(t, perp.Start())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPerpRatesRejectsNonPositivePrice(t *testing.T) {
	server := setupMockBinanceServer("0")
	defer server.Close()

	db, mock := setupDBMock(t)

	perp := PerpRates{
		Log:          logrus.NewEntry(logrus.New()),
		DB:           db,
		Config:       GetConfig(),
		spotExchange: mockExchange(server.URL),
		perpExchange: mockExchange(server.URL),
	}

	err := perp.ingestOnce(context.Background())
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBasisSpread(t *testing.T) {
	tests := []struct {
		name     string
		spot     float64
		perp     float64
		expected float64
	}{
		{"contango", 100, 100.5, 0.005},
		{"backwardation", 100, 99, -0.01},
		{"flat", 150.45, 150.45, 0},
		{"zero spot", 0, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.expected, basisSpread(tt.spot, tt.perp), 1e-12)
		})
	}
}

func TestConfigPerpSymbol(t *testing.T) {
	config := &Config{Symbol: "SOL"}
	require.Equal(t, "SOL-PERP", config.PerpSymbol())
}
