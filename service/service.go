package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"anonymous-report-service/abuse"
	"anonymous-report-service/config"
	"anonymous-report-service/database"
	"anonymous-report-service/evidence"
	"anonymous-report-service/geocode"
	"anonymous-report-service/handlers"
	"anonymous-report-service/intake"
	"anonymous-report-service/metrics"
	"anonymous-report-service/rabbitmq"
	"anonymous-report-service/utils"

	"github.com/apex/log"
)

// Staged uploads older than this belong to requests that never finished.
const staleUploadAge = time.Hour

// Service wires the anonymous report intake and runs its housekeeping loop.
type Service struct {
	config    *config.Config
	db        *sql.DB
	lockDB    *sql.DB
	reports   *database.ReportsService
	abuse     abuse.Store
	storage   *evidence.Storage
	publisher *rabbitmq.Publisher
	pipeline  *intake.Pipeline

	public *handlers.AnonymousReportHandler
	admin  *handlers.AdminHandler

	now func() time.Time

	// Control channels
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService connects to the database and builds every component.
func NewService(cfg *config.Config) (*Service, error) {
	db, err := utils.DBConnect(cfg)
	if err != nil {
		return nil, err
	}

	// Named locks pin a connection each, so they get a pool of their own.
	var lockDB *sql.DB
	if cfg.SubmissionLock == "mysql" {
		lockDB, err = utils.DBConnectPool(cfg, cfg.SubmissionLockPool)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	svc, err := newService(cfg, db, lockDB)
	if err != nil {
		db.Close()
		if lockDB != nil {
			lockDB.Close()
		}
		return nil, err
	}
	return svc, nil
}

func newService(cfg *config.Config, db, lockDB *sql.DB) (*Service, error) {
	reports := database.NewReportsService(db)

	var store abuse.Store
	switch cfg.AbuseStore {
	case "mysql":
		store = database.NewAbuseStore(db, cfg.MaxSubmissions, cfg.RateLimitWindow, cfg.DuplicateWindow)
	case "memory":
		store = abuse.NewMemoryStore(cfg.MaxSubmissions, cfg.RateLimitWindow, cfg.DuplicateWindow)
	default:
		return nil, fmt.Errorf("unknown ABUSE_STORE %q", cfg.AbuseStore)
	}

	var locker abuse.Locker
	switch cfg.SubmissionLock {
	case "local":
		locker = abuse.NewKeyedMutex()
	case "mysql":
		if lockDB == nil {
			return nil, fmt.Errorf("SUBMISSION_LOCK=mysql needs a lock connection pool")
		}
		locker = database.NewNamedLocker(lockDB, "anon_submit_", cfg.SubmissionLockWait)
	default:
		return nil, fmt.Errorf("unknown SUBMISSION_LOCK %q", cfg.SubmissionLock)
	}

	storage := evidence.NewStorage(cfg.EvidenceRoot, cfg.EvidenceDir, cfg.StripImageMetadata, cfg.MaxImageDimension,
		evidence.WithMaxPixels(cfg.MaxImagePixels))

	var opts []intake.Option
	if cfg.GeocoderURL != "" {
		opts = append(opts, intake.WithGeocoder(geocode.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocodeTimeout)))
	}

	var publisher *rabbitmq.Publisher
	if cfg.AMQPURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// Events are best-effort; intake keeps working without them.
			log.Warnf("Report events disabled: %v", err)
		} else {
			publisher = pub
			opts = append(opts, intake.WithPublisher(pub))
		}
	}

	pipeline := intake.NewPipeline(intake.Config{
		IPHashSalt:      cfg.IPHashSalt,
		ContentHashSalt: cfg.ContentHashSalt,
		MaxSubmissions:  cfg.MaxSubmissions,
		GeocodeTimeout:  cfg.GeocodeTimeout,
		Location:        cfg.Location(),
	}, reports, store, locker, reports, storage, opts...)

	return &Service{
		config:    cfg,
		db:        db,
		lockDB:    lockDB,
		reports:   reports,
		abuse:     store,
		storage:   storage,
		publisher: publisher,
		pipeline:  pipeline,
		public:    handlers.NewAnonymousReportHandler(cfg, pipeline, reports),
		admin:     handlers.NewAdminHandler(reports, storage),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}, nil
}

// Start initialises the schema and directories and starts housekeeping.
func (s *Service) Start() error {
	log.Info("Starting anonymous report service...")

	if err := database.InitSchema(s.db); err != nil {
		return err
	}
	if err := s.storage.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create evidence directory: %w", err)
	}
	if err := os.MkdirAll(s.config.UploadTmpDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	s.wg.Add(1)
	go s.housekeepingLoop()

	log.Info("Anonymous report service started successfully")
	return nil
}

// Stop stops the service gracefully
func (s *Service) Stop() error {
	log.Info("Stopping anonymous report service...")

	close(s.stopChan)
	s.wg.Wait()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Warnf("Error closing publisher: %v", err)
		}
	}
	if s.lockDB != nil && s.lockDB != s.db {
		if err := s.lockDB.Close(); err != nil {
			log.Errorf("Error closing lock database: %v", err)
		}
	}
	if err := s.db.Close(); err != nil {
		log.Errorf("Error closing database: %v", err)
	}

	log.Info("Anonymous report service stopped")
	return nil
}

// PublicHandlers returns the unauthenticated HTTP handlers.
func (s *Service) PublicHandlers() *handlers.AnonymousReportHandler {
	return s.public
}

// AdminHandlers returns the admin HTTP handlers.
func (s *Service) AdminHandlers() *handlers.AdminHandler {
	return s.admin
}

// Reports returns the database service, used as the admin directory.
func (s *Service) Reports() *database.ReportsService {
	return s.reports
}

func (s *Service) housekeepingLoop() {
	defer s.wg.Done()

	interval := s.config.HousekeepingInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.housekeep(context.Background())
		}
	}
}

// housekeep purges expired abuse rows and abandoned temp uploads.
func (s *Service) housekeep(ctx context.Context) {
	purged, err := s.abuse.PurgeExpired(ctx)
	if err != nil {
		log.Errorf("Failed to purge expired abuse records: %v", err)
	} else if purged > 0 {
		metrics.PurgedRowsTotal.Add(float64(purged))
		log.Infof("Purged %d expired abuse records", purged)
	}

	removed, err := evidence.PurgeStaleUploads(s.config.UploadTmpDir, staleUploadAge, s.now())
	if err != nil {
		log.Errorf("Failed to purge stale uploads: %v", err)
	} else if removed > 0 {
		log.Infof("Removed %d stale temp uploads", removed)
	}
}
