package container

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"household-catalog/internal/config"
	catalogHandler "household-catalog/internal/domains/catalog/handler"
	"household-catalog/internal/domains/catalog/identity"
	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/internal/domains/catalog/service"
	infraCache "household-catalog/internal/infrastructure/cache"
	"household-catalog/internal/infrastructure/database"
	"household-catalog/internal/infrastructure/documentdb"
	"household-catalog/internal/infrastructure/queue"
	"household-catalog/pkg/cache"
)

// ========================================
// CONTAINER STRUCT
// ========================================

// Container chứa TẤT CẢ dependencies của application
// Pattern: Service Locator + Dependency Injection
type Container struct {
	// ========================================
	// INFRASTRUCTURE LAYER
	// ========================================
	// Chỉ một trong DB / Mongo được dùng, tùy STORE_DRIVER

	Config       *config.Config
	DB           *database.PostgresDB
	Mongo        *documentdb.MongoClient
	Redis        *infraCache.RedisClient
	LocalBackend cache.Cache // badger / redis / memory
	AsynqClient  *asynq.Client

	// ========================================
	// REPOSITORY LAYER (DATA ACCESS)
	// ========================================

	Store      repository.Store           // adapter của store đang active
	IDs        *identity.Mapper           // legacy id → canonical id
	LocalCache *localcache.Store          // working copy
	Repo       *repository.Facade         // store + identity mapping
	Pending    *service.PendingWriteQueue // nil khi SYNC_PENDING_WRITES=false

	// ========================================
	// SERVICE LAYER (RECONCILIATION)
	// ========================================

	Snapshot     service.Snapshot
	Synchronizer *service.Synchronizer
	Repairer     *service.Repairer
	Recalculator *service.Recalculator
	Dispatcher   service.RecalcDispatcher
	Coordinator  *service.Coordinator
	Reconciler   *service.Reconciler

	inline *service.InlineDispatcher

	// ========================================
	// HANDLER LAYER (HTTP)
	// ========================================

	CatalogHandler *catalogHandler.CatalogHandler
}

// ========================================
// CONSTRUCTOR: BUILD CONTAINER
// ========================================

// NewContainer dựng toàn bộ engine (CLI, worker).
//
// QUAN TRỌNG: Thứ tự initialization:
// 1. Config
// 2. Backing store (postgres / mongo / http / memory)
// 3. Local cache backend
// 4. Repositories (identity map, working copy, facade)
// 5. Snapshot load
// 6. Services
func NewContainer() (*Container, error) {
	log.Println("🔧 Initializing DI Container...")

	c := &Container{}

	// ========================================
	// STEP 1: LOAD CONFIGURATION
	// ========================================
	log.Println("📋 Loading configuration...")

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	c.Config = cfg
	log.Printf("✅ Config loaded (Environment: %s, Store: %s)", cfg.App.Environment, cfg.Store.Driver)

	// ========================================
	// STEP 2: CONNECT BACKING STORE
	// ========================================
	if err := c.initStore(); err != nil {
		c.Cleanup()
		return nil, err
	}

	// ========================================
	// STEP 3: OPEN LOCAL CACHE
	// ========================================
	if err := c.initLocalCache(); err != nil {
		c.Cleanup()
		return nil, err
	}

	// ========================================
	// STEP 4: INITIALIZE REPOSITORIES
	// ========================================
	log.Println("📦 Initializing repositories...")
	c.initRepositories()
	log.Println("✅ Repositories initialized")

	// ========================================
	// STEP 5: LOAD SNAPSHOT
	// ========================================
	// Identity map, working copy và pending writes từ lần chạy trước
	log.Println("💾 Loading local snapshot...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Snapshot.Load(ctx); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to load local snapshot: %w", err)
	}
	log.Printf("✅ Snapshot loaded (books: %d, mappings: %d)", len(c.LocalCache.Books()), c.IDs.Len())

	// ========================================
	// STEP 6: INITIALIZE SERVICES
	// ========================================
	log.Println("⚙️  Initializing services...")

	if err := c.initServices(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}
	log.Println("✅ Services initialized")

	log.Println("🎉 DI Container initialized successfully")
	return c, nil
}

// NewServerContainer chỉ dựng phần cmd/api cần: backing store + HTTP handler.
// API server không giữ working copy, nó là relational store phía xa của HTTPStore.
func NewServerContainer() (*Container, error) {
	log.Println("🔧 Initializing API Container...")

	c := &Container{}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Store.Driver == config.StoreHTTP {
		// server trỏ về chính nó → vòng lặp
		return nil, fmt.Errorf("api server cannot use STORE_DRIVER=http")
	}
	c.Config = cfg
	log.Printf("✅ Config loaded (Environment: %s, Store: %s)", cfg.App.Environment, cfg.Store.Driver)

	if err := c.initStore(); err != nil {
		c.Cleanup()
		return nil, err
	}

	log.Println("🎯 Initializing handlers...")
	c.CatalogHandler = catalogHandler.NewCatalogHandler(c.Store, c.storeHealth)
	log.Println("✅ Handlers initialized")

	log.Println("🎉 API Container initialized successfully")
	return c, nil
}

// ========================================
// PRIVATE INITIALIZATION METHODS
// ========================================

// initStore connect tới backing store theo STORE_DRIVER
func (c *Container) initStore() error {
	cfg := c.Config
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StorePostgres:
		log.Println("🗄️  Connecting to PostgreSQL...")

		dbConfig, err := config.LoadDatabaseConfig()
		if err != nil {
			return fmt.Errorf("failed to load database config: %w", err)
		}
		db := database.NewPostgresDB(dbConfig)
		if err := db.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db

		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}

		store := repository.NewPostgresStore(db.Pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
		c.Store = store
		log.Println("✅ Database connected")

	case config.StoreMongo:
		log.Println("🍃 Connecting to MongoDB...")

		client, err := documentdb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
		if err != nil {
			return fmt.Errorf("failed to connect to mongo: %w", err)
		}
		c.Mongo = client

		store := repository.NewMongoStore(client.DB)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to ensure indexes: %w", err)
		}
		c.Store = store
		log.Println("✅ MongoDB connected")

	case config.StoreHTTP:
		log.Printf("🌐 Using catalog API at %s", cfg.HTTPStore.BaseURL)
		c.Store = repository.NewHTTPStore(cfg.HTTPStore.BaseURL, cfg.HTTPStore.Timeout, cfg.HTTPStore.PageSize)

	case config.StoreMemory:
		log.Println("⚠️  Using in-memory store (data is lost on exit)")
		c.Store = repository.NewMemoryStore()

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return nil
}

// initLocalCache mở backend cho working copy theo LOCAL_CACHE_DRIVER
func (c *Container) initLocalCache() error {
	cfg := c.Config

	switch cfg.LocalCache.Driver {
	case config.CacheBadger:
		log.Printf("💾 Opening badger cache at %s...", cfg.LocalCache.Dir)
		backend, err := infraCache.OpenBadgerCache(cfg.LocalCache.Dir)
		if err != nil {
			return fmt.Errorf("failed to open local cache: %w", err)
		}
		c.LocalBackend = backend
		log.Println("✅ Local cache opened")

	case config.CacheRedis:
		log.Println("🔴 Connecting to Redis...")
		if err := c.initRedis(); err != nil {
			return err
		}
		c.LocalBackend = infraCache.NewRedisCache(c.Redis, cfg.LocalCache.Prefix)
		log.Println("✅ Redis connected")

	case config.CacheMemory:
		c.LocalBackend = infraCache.NewMemoryCache()

	default:
		return fmt.Errorf("unknown local cache driver %q", cfg.LocalCache.Driver)
	}

	return nil
}

func (c *Container) initRedis() error {
	if c.Redis != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc := infraCache.NewRedisClient(c.Config.Redis.Host, c.Config.Redis.Password, c.Config.Redis.DB)
	if err := rc.Connect(ctx); err != nil {
		// working copy nằm trên redis nên lỗi là critical
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Redis = rc
	return nil
}

func (c *Container) initRepositories() {
	c.IDs = identity.NewMapper(c.LocalBackend)
	c.LocalCache = localcache.New(c.LocalBackend)
	c.Repo = repository.NewFacade(c.Store, c.IDs)

	if c.Config.Sync.PendingWrites {
		c.Pending = service.NewPendingWriteQueue(c.LocalBackend, c.Config.Sync.PendingMaxAttempts)
	}

	c.Snapshot = service.Snapshot{
		Cache:   c.LocalCache,
		IDs:     c.IDs,
		Pending: c.Pending,
	}
}

func (c *Container) initServices() error {
	sc := c.Config.Sync

	c.Synchronizer = service.NewSynchronizer(c.Repo, c.LocalCache, c.IDs)
	c.Repairer = service.NewRepairer(c.Repo, c.LocalCache, sc.FallbackCategory, sc.IDMinLength)
	c.Recalculator = service.NewRecalculator(c.Repo, c.LocalCache, sc.RecalcConcurrency, sc.UseServerStats)

	// ----------------------------------------
	// RECALC DISPATCHER
	// ----------------------------------------
	// inline: goroutine trong process hiện tại
	// queue: asynq task, worker xử lý
	switch sc.Dispatch {
	case config.DispatchQueue:
		c.AsynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     c.Config.Redis.Host,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		c.Dispatcher = queue.NewRecalcEnqueuer(c.AsynqClient, c.Config.Job.RecalcMaxRetry)
	default:
		c.inline = service.NewInlineDispatcher(c.Recalculator)
		c.Dispatcher = c.inline
	}

	c.Coordinator = service.NewCoordinator(
		c.Repo,
		c.LocalCache,
		c.IDs,
		c.Dispatcher,
		c.Pending,
		service.CoordinatorConfig{
			FallbackCategory: sc.FallbackCategory,
			ReservedCategory: sc.ReservedCategory,
		},
	)

	// flusher nil khi tắt pending writes → Reconciler bỏ qua bước flush
	var flusher service.PendingFlusher
	if c.Pending != nil {
		flusher = c.Coordinator
	}
	c.Reconciler = service.NewReconciler(flusher, c.Synchronizer, c.Repairer, c.Recalculator)

	return nil
}

// ========================================
// HELPER METHODS
// ========================================

// storeHealth dùng cho /health và health check của worker
func (c *Container) storeHealth(ctx context.Context) error {
	switch {
	case c.DB != nil:
		return c.DB.HealthCheck(ctx)
	case c.Mongo != nil:
		return c.Mongo.HealthCheck(ctx)
	}
	return nil
}

// HealthCheck kiểm tra store và local cache
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.storeHealth(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.LocalBackend != nil {
		if err := c.LocalBackend.Ping(ctx); err != nil {
			return fmt.Errorf("local cache: %w", err)
		}
	}
	return nil
}

// WaitForDispatches chờ các recalculation inline đang chạy (CLI gọi trước khi thoát)
func (c *Container) WaitForDispatches() {
	if c.inline != nil {
		c.inline.Wait()
	}
}

// Cleanup dọn dẹp resources khi shutdown
func (c *Container) Cleanup() {
	log.Println("🧹 Cleaning up container resources...")

	// Recalculation inline ghi vào local cache → phải xong trước khi đóng cache
	c.WaitForDispatches()

	if c.AsynqClient != nil {
		if err := c.AsynqClient.Close(); err != nil {
			log.Printf("⚠️  Failed to close asynq client: %v", err)
		}
	}

	if c.LocalBackend != nil {
		if err := c.LocalBackend.Close(); err != nil {
			log.Printf("⚠️  Failed to close local cache: %v", err)
		} else {
			log.Println("✅ Local cache closed")
		}
	} else if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Printf("⚠️  Failed to close Redis: %v", err)
		}
	}

	if c.DB != nil && c.DB.Pool != nil {
		c.DB.Pool.Close()
		log.Println("✅ Database connections closed")
	}

	if c.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Mongo.Close(ctx); err != nil {
			log.Printf("⚠️  Failed to close MongoDB: %v", err)
		} else {
			log.Println("✅ MongoDB disconnected")
		}
	}

	log.Println("✅ Cleanup completed")
}
