//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/botstudio/internal/api/handlers"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/jobs"
	"github.com/cloo-solutions/botstudio/internal/queue"
	"github.com/cloo-solutions/botstudio/internal/ratelimit"
	"github.com/cloo-solutions/botstudio/internal/realtime"
	"github.com/cloo-solutions/botstudio/internal/repository"
	"github.com/cloo-solutions/botstudio/internal/server"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/cloo-solutions/botstudio/internal/session"
	"github.com/cloo-solutions/botstudio/internal/storage"
	"github.com/cloo-solutions/botstudio/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	ownerID        = "user-owner"
	sessionSecret  = "e2e-widget-session-secret-0123456789abcdef"
	embeddingDims  = 1536
	defaultModel   = "gpt-4o-mini"
	scriptedAnswer = "We are open from 9 to 5."
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	RedisC       *testutil.RedisContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client

	Model       *scriptedModel
	IndexWorker *jobs.IndexWorker
	Billing     *service.BillingService
	Workspaces  *service.WorkspaceService
	Catalog     *service.CatalogService

	WorkspaceID string
	Token       string
}

// SetupE2EEnv creates a full E2E test environment with containers, an API
// server and an in-process task worker.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	redisC := testutil.NewRedisContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		RedisC:     redisC,
		Pool:       pool,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Model:      &scriptedModel{answer: scriptedAnswer},
	}
	env.startServer(s3Client, port)

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RedisC != nil {
		e.RedisC.Terminate(e.Ctx)
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// Bootstrap seeds plans and the tool catalog and creates a workspace with an
// owner API key.
func (e *E2ETestEnv) Bootstrap() {
	if _, err := e.Billing.SeedPlans(e.Ctx); err != nil {
		e.T.Fatalf("failed to seed plans: %v", err)
	}

	f, err := os.Open("../../configs/catalog.yaml")
	if err != nil {
		e.T.Fatalf("failed to open catalog: %v", err)
	}
	defer f.Close()
	catalog, err := service.ParseCatalog(f)
	if err != nil {
		e.T.Fatalf("failed to parse catalog: %v", err)
	}
	if _, err := e.Catalog.ImportCatalog(e.Ctx, catalog); err != nil {
		e.T.Fatalf("failed to import catalog: %v", err)
	}

	ws, token, err := e.Workspaces.CreateWorkspaceWithKey(e.Ctx, "E2E Studio", ownerID, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create workspace: %v", err)
	}
	e.WorkspaceID = ws.ID
	e.Token = token
}

// RunIndexer processes every pending index job once.
func (e *E2ETestEnv) RunIndexer() {
	if err := e.IndexWorker.ProcessJobs(e.Ctx); err != nil {
		e.T.Fatalf("failed to process index jobs: %v", err)
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int             `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Decode unmarshals the data envelope into v.
func (r *APIResponse) Decode(t *testing.T, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Data, v); err != nil {
		t.Fatalf("failed to decode response data %s: %v", r.Data, err)
	}
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) *APIResponse {
	return e.Do(http.MethodGet, path, nil, authToken, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any, authToken string) *APIResponse {
	return e.Do(http.MethodPost, path, body, authToken, nil)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body any, authToken string) *APIResponse {
	return e.Do(http.MethodPut, path, body, authToken, nil)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) *APIResponse {
	return e.Do(http.MethodDelete, path, nil, authToken, nil)
}

// Do sends a JSON request and fails the test on transport errors.
func (e *E2ETestEnv) Do(method, path string, body any, authToken string, headers map[string]string) *APIResponse {
	e.T.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			e.T.Fatalf("failed to marshal body: %v", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(e.Ctx, method, e.ServerURL+path, reqBody)
	if err != nil {
		e.T.Fatalf("failed to build request: %v", err)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		e.T.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.T.Fatalf("failed to read response: %v", err)
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			e.T.Fatalf("%s %s returned invalid JSON (HTTP %d): %s", method, path, resp.StatusCode, respBody)
		}
	}
	return apiResp
}

// UploadFile uploads a file to the presigned URL
func (e *E2ETestEnv) UploadFile(uploadURL string, content []byte, contentType string) error {
	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, body)
	}

	return nil
}

// startServer wires the services the way botstudiod does and starts the HTTP
// server plus an asynq worker consuming the generation queue.
func (e *E2ETestEnv) startServer(s3Client *storage.S3Client, port int) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	pool := e.Pool
	uuidGen := &service.DefaultUUIDGenerator{}
	tx := repository.NewTxRunner(pool)

	memberRepo := repository.NewMemberRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	botRepo := repository.NewBotRepository(pool)
	widgetRepo := repository.NewWidgetRepository(pool)
	docRepo := repository.NewDocumentRepository(pool)
	templateRepo := repository.NewTemplateRepository(pool)

	hub := realtime.NewHub(log)
	redisCfg := queue.RedisConfig{Addr: e.RedisC.Addr()}
	queueClient := queue.NewClient(redisCfg)
	limiter := ratelimit.New(5, 10)
	embedder := hashEmbedder{}

	e.Workspaces = service.NewWorkspaceService(repository.NewWorkspaceRepository(pool), memberRepo, tx, uuidGen)
	authSvc := service.NewAuthService(apiKeyRepo, memberRepo, uuidGen, log)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(pool), realtime.NewLocalBus(hub), uuidGen, log)
	e.Billing = service.NewBillingService(
		repository.NewPlanRepository(pool),
		repository.NewSubscriptionRepository(pool),
		repository.NewUsageRepository(pool),
		memberRepo, notifications, log,
	)
	e.Billing.RegisterCounter(domain.MetricBots, botRepo.Count)
	e.Billing.RegisterCounter(domain.MetricKnowledgeDocuments, docRepo.CountByWorkspace)

	bots := service.NewBotService(botRepo, repository.NewKnowledgeBaseRepository(pool), e.Billing, uuidGen)
	widgets := service.NewWidgetService(widgetRepo, botRepo, tx, uuidGen)
	e.Catalog = service.NewCatalogService(repository.NewToolRepository(pool), templateRepo, uuidGen, log)
	knowledge := service.NewKnowledgeService(
		repository.NewKnowledgeBaseRepository(pool), docRepo, repository.NewChunkRepository(pool),
		repository.NewCrawlJobRepository(pool), tx, e.Billing, notifications, uuidGen, log,
	).WithStorage(&objectStore{client: s3Client}).WithEmbedder(embedder)
	e.IndexWorker = jobs.NewIndexWorker(repository.NewIndexJobRepository(pool), service.NewIndexingService(embedder, docRepo, tx), log)

	generation := service.NewGenerationService(
		repository.NewGenerationJobRepository(pool), templateRepo, e.Catalog, e.Billing, queueClient,
		notifications, tx, uuidGen, defaultModel, log,
	).WithModel(e.Model)
	chat := service.NewChatService(botRepo, widgetRepo, session.NewIssuer(sessionSecret, time.Hour), limiter, e.Billing, knowledge, e.Model, log)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:       authSvc,
		Log:                 log,
		Health:              pool.Ping,
		WorkspaceHandler:    handlers.NewWorkspaceHandler(e.Workspaces),
		APIKeyHandler:       handlers.NewAPIKeyHandler(authSvc),
		BotHandler:          handlers.NewBotHandler(bots),
		WidgetHandler:       handlers.NewWidgetHandler(widgets),
		KnowledgeHandler:    handlers.NewKnowledgeHandler(knowledge),
		CatalogHandler:      handlers.NewCatalogHandler(e.Catalog),
		GenerationHandler:   handlers.NewGenerationHandler(generation),
		NotificationHandler: handlers.NewNotificationHandler(notifications, hub, log),
		BillingHandler:      handlers.NewBillingHandler(e.Billing),
		ChatHandler:         handlers.NewChatHandler(chat),
	})

	worker := queue.NewServer(queue.ServerConfig{Redis: redisCfg, Concurrency: 2}, log)
	if err := worker.Start(queue.NewServeMux(queue.Handlers{Generation: generation, Crawl: knowledge, Log: log})); err != nil {
		e.T.Fatalf("failed to start task worker: %v", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 10*time.Second)

	e.ServerCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		worker.Shutdown()
		queueClient.Close()
		hub.Close()
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// objectStore adapts S3Client to the knowledge service
type objectStore struct {
	client *storage.S3Client
}

func (o *objectStore) GenerateUploadURL(ctx context.Context, key string, contentType string) (string, error) {
	return o.client.GenerateUploadURL(ctx, key, contentType)
}

func (o *objectStore) GetObject(ctx context.Context, key string, maxBytes int64) ([]byte, error) {
	return o.client.GetObject(ctx, key, maxBytes)
}

func (o *objectStore) DeleteObject(ctx context.Context, key string) error {
	return o.client.DeleteObject(ctx, key)
}

func (o *objectStore) HeadObject(ctx context.Context, key string) (*service.ObjectMetadata, error) {
	meta, err := o.client.HeadObject(ctx, key)
	if err != nil {
		return nil, err
	}
	return &service.ObjectMetadata{
		ContentLength: meta.ContentLength,
		ContentType:   meta.ContentType,
		ETag:          meta.ETag,
	}, nil
}

// hashEmbedder maps words onto buckets so texts sharing words end up close.
type hashEmbedder struct{}

func (hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?:;\"'")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// scriptedModel answers every completion with a fixed text and remembers the
// last request.
type scriptedModel struct {
	answer string

	mu   sync.Mutex
	last *domain.CompletionRequest
}

func (m *scriptedModel) Complete(_ context.Context, req domain.CompletionRequest) (*domain.CompletionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = &req
	return &domain.CompletionResult{Content: m.answer, PromptTokens: 10, CompletionTokens: 5}, nil
}

func (m *scriptedModel) LastRequest() *domain.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// waitFor polls cond until it returns true or the timeout passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
