// Simulation drives the whole engine end to end against the in-memory mock
// exchange: credentials and schedules go in through the HTTP API, the daemon
// passes run in-process, and the run reports per-route latency stats plus the
// final order states.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bonsaidca/bonsai/internal/auth"
	"github.com/bonsaidca/bonsai/internal/credentials"
	"github.com/bonsaidca/bonsai/internal/database"
	"github.com/bonsaidca/bonsai/internal/exchange"
	"github.com/bonsaidca/bonsai/internal/exchange/mock"
	"github.com/bonsaidca/bonsai/internal/executor"
	"github.com/bonsaidca/bonsai/internal/orders"
	"github.com/bonsaidca/bonsai/internal/scheduler"
	"github.com/bonsaidca/bonsai/internal/schedules"
	"github.com/bonsaidca/bonsai/internal/types"
	"github.com/bonsaidca/bonsai/pkg/middleware"
)

const (
	numSchedules   = 8
	numManualOrds  = 4
	numWorkers     = 4
	daemonCycles   = 5
	serverAddress  = "http://localhost:8081"
	simAPIKey      = "sim-api-key"
	simAPISecret   = "sim-api-secret"
	simJWTSecret   = "sim-jwt-secret"
)

var markets = []string{"btcusd", "ethusd"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes min, max, mean, median, 95th and 99th percentile
// durations from the recorded measurements.
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the management API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	mu        sync.Mutex
	stats     map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":       {name: "Authentication"},
			"credential": {name: "Create Credential"},
			"schedule":   {name: "Create Schedule"},
			"manual":     {name: "Manual Order"},
			"recent":     {name: "Recent Orders"},
		},
	}
}

func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

// doJSON posts a JSON body and decodes the standard response envelope's data
// field into out.
func (sc *simulationClient) doJSON(method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+sc.authToken)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("decoding response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(envelope.Data, out)
}

func (sc *simulationClient) authenticate() error {
	start := time.Now()
	var token auth.TokenResponse
	err := sc.doJSON("POST", "/api/v1/auth/token", map[string]string{
		"api_key":    simAPIKey,
		"api_secret": simAPISecret,
	}, &token)
	sc.record("auth", start, err != nil)
	if err != nil {
		return err
	}
	sc.authToken = token.Token
	return nil
}

func (sc *simulationClient) createCredential() (string, error) {
	start := time.Now()
	var view struct {
		CredentialID string `json:"credential_id"`
	}
	err := sc.doJSON("POST", "/api/v1/credentials", map[string]string{
		"exchange":   types.ExchangeGemini,
		"api_key":    "simulated-account-key",
		"api_secret": "simulated-account-secret",
	}, &view)
	sc.record("credential", start, err != nil)
	return view.CredentialID, err
}

func (sc *simulationClient) createSchedule(credentialID, market string) (string, error) {
	start := time.Now()
	var schedule types.Schedule
	err := sc.doJSON("POST", "/api/v1/schedules", map[string]interface{}{
		"credential_id":    credentialID,
		"market":           market,
		"side":             types.SideBuy,
		"amount":           "25",
		"amount_currency":  "USD",
		"repeat_duration":  1,
		"repeat_timescale": types.TimescaleMinutes,
	}, &schedule)
	sc.record("schedule", start, err != nil)
	return schedule.ScheduleID, err
}

func (sc *simulationClient) placeManualOrder(credentialID, market string) (string, error) {
	start := time.Now()
	var order types.Order
	err := sc.doJSON("POST", "/api/v1/orders/manual", map[string]interface{}{
		"credential_id":   credentialID,
		"market":          market,
		"side":            types.SideBuy,
		"amount":          "10",
		"amount_currency": "USD",
	}, &order)
	sc.record("manual", start, err != nil)
	return order.OrderID, err
}

func (sc *simulationClient) recentOrders() ([]types.Order, error) {
	start := time.Now()
	var orderList []types.Order
	err := sc.doJSON("GET", "/api/v1/orders/recent", nil, &orderList)
	sc.record("recent", start, err != nil)
	return orderList, err
}

func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n=== API Performance Statistics ===")
	for _, rs := range sc.stats {
		if rs.totalCalls == 0 {
			continue
		}
		min, max, mean, median, p95, p99 := rs.calculate()
		fmt.Printf("\n%s (%d calls, %d failures)\n", rs.name, rs.totalCalls, rs.failures)
		fmt.Printf("  min=%v max=%v mean=%v median=%v p95=%v p99=%v\n",
			min, max, mean, median, p95, p99)
	}
}

// newMockExchange scripts the markets the simulation trades.
func newMockExchange() *mock.Client {
	client := mock.NewClient()
	client.FillAfterPolls = 2

	client.SetMarket(&exchange.MarketDetails{
		Market:         "btcusd",
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USD",
		MinOrderSize:   decimal.RequireFromString("0.00001"),
		BaseIncrement:  decimal.RequireFromString("0.00000001"),
		QuoteIncrement: decimal.RequireFromString("0.01"),
	}, &exchange.BookTop{
		BestBid: decimal.RequireFromString("41233.17"),
		BestAsk: decimal.RequireFromString("41240.02"),
	})

	client.SetMarket(&exchange.MarketDetails{
		Market:         "ethusd",
		BaseCurrency:   "ETH",
		QuoteCurrency:  "USD",
		MinOrderSize:   decimal.RequireFromString("0.001"),
		BaseIncrement:  decimal.RequireFromString("0.000001"),
		QuoteIncrement: decimal.RequireFromString("0.01"),
	}, &exchange.BookTop{
		BestBid: decimal.RequireFromString("2201.44"),
		BestAsk: decimal.RequireFromString("2201.91"),
	})

	return client
}

// startServer builds the full service stack on an in-memory database with
// the mock exchange registered for gemini, and serves the management API.
func startServer(db *gorm.DB, registry *exchange.Registry, executorService *executor.Service) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RateLimit())

	authService := auth.NewService(simJWTSecret)
	authService.RegisterAPICredentials(simAPIKey, simAPISecret)
	authHandlers := auth.NewGinHandlers(authService)

	credentialHandlers := credentials.NewGinHandlers(credentials.NewService(db))
	scheduleHandlers := schedules.NewGinHandlers(schedules.NewService(db))
	orderHandlers := orders.NewGinHandlers(orders.NewService(db, executorService))

	v1 := router.Group("/api/v1")
	v1.POST("/auth/token", authHandlers.GenerateTokenHandler())

	protected := v1.Group("")
	protected.Use(middleware.JWTAuth([]byte(simJWTSecret)))
	protected.POST("/credentials", credentialHandlers.CreateCredentialHandler())
	protected.POST("/schedules", scheduleHandlers.CreateScheduleHandler())
	protected.POST("/orders/manual", orderHandlers.ManualOrderHandler())
	protected.GET("/orders/recent", orderHandlers.RecentOrdersHandler())

	go func() {
		if err := router.Run(":8081"); err != nil {
			log.Fatal().Err(err).Msg("simulation server failed")
		}
	}()

	// Give the listener a moment to come up
	time.Sleep(200 * time.Millisecond)
	return nil
}

func main() {
	db, err := database.NewTestDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open in-memory database")
	}

	mockExchange := newMockExchange()
	registry := exchange.NewRegistry()
	registry.Register(types.ExchangeGemini, mockExchange.Factory())

	executorService := executor.NewService(db, registry)
	schedulerService := scheduler.NewService(db, registry, executorService)

	if err := startServer(db, registry, executorService); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	simClient := newSimulationClient()
	if err := simClient.authenticate(); err != nil {
		log.Fatal().Err(err).Msg("authentication failed")
	}

	credentialID, err := simClient.createCredential()
	if err != nil {
		log.Fatal().Err(err).Msg("credential creation failed")
	}
	log.Info().Str("credential_id", credentialID).Msg("credential created")

	for i := 0; i < numSchedules; i++ {
		scheduleID, err := simClient.createSchedule(credentialID, markets[i%len(markets)])
		if err != nil {
			log.Fatal().Err(err).Msg("schedule creation failed")
		}
		log.Debug().Str("schedule_id", scheduleID).Msg("schedule created")
	}

	// Manual orders from concurrent workers, like a busy UI session
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := 0; i < numManualOrds/numWorkers+1; i++ {
				orderID, err := simClient.placeManualOrder(credentialID, markets[i%len(markets)])
				if err != nil {
					log.Warn().Err(err).Int("worker", workerID).Msg("manual order failed")
					continue
				}
				log.Debug().Str("order_id", orderID).Int("worker", workerID).Msg("manual order placed")
			}
		}(w)
	}
	wg.Wait()

	// Single-step daemon cycles instead of running the ticker loop so the
	// simulation finishes deterministically.
	ctx := context.Background()
	for cycle := 1; cycle <= daemonCycles; cycle++ {
		dispatches, err := schedulerService.EvaluateDuePass(ctx)
		if err != nil {
			log.Error().Err(err).Msg("evaluation pass failed")
		}
		reconciles, err := schedulerService.ReconcileLivePass(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reconciliation pass failed")
		}
		log.Info().
			Int("cycle", cycle).
			Int("dispatched", len(dispatches)).
			Int("reconciled", len(reconciles)).
			Msg("daemon cycle complete")
	}

	finalOrders, err := simClient.recentOrders()
	if err != nil {
		log.Fatal().Err(err).Msg("fetching recent orders failed")
	}

	byStatus := make(map[string]int)
	for _, order := range finalOrders {
		byStatus[order.Status]++
	}
	log.Info().Interface("orders_by_status", byStatus).Int("total", len(finalOrders)).Msg("simulation complete")

	simClient.printPerformanceStats()
}
