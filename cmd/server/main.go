package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom-attendance/config"
	"classroom-attendance/internal/api/handlers"
	"classroom-attendance/internal/api/middleware"
	"classroom-attendance/internal/attendance"
	"classroom-attendance/internal/cleanup"
	"classroom-attendance/internal/core/dispatch"
	"classroom-attendance/internal/db"
	"classroom-attendance/internal/db/repository"
	"classroom-attendance/internal/i18n"
	"classroom-attendance/internal/integrations/email"
	"classroom-attendance/internal/integrations/facerecognition"
	"classroom-attendance/internal/integrations/homeassistant"
	"classroom-attendance/internal/integrations/mqtt"
	"classroom-attendance/internal/integrations/opencv"
	"classroom-attendance/internal/logger"
	"classroom-attendance/internal/server/sse"
	"classroom-attendance/internal/util/timezone"
	"classroom-attendance/internal/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	defaultConfigPath = "/config/config.yaml"
	version           = "1.0.0"
)

func main() {
	configPath := defaultConfigPath
	if p := os.Getenv("ATTENDANCE_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logger.Close()

	timezone.Initialize(cfg.Server.Timezone)

	log.Info("Initializing database...")
	if err := db.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	repo := repository.NewSQLiteRepository(db.DB)
	roster := repository.NewRoster(repo)

	translator, err := i18n.NewTranslator(cfg.I18n)
	if err != nil {
		log.Fatalf("Failed to initialize translations: %v", err)
	}
	language := cfg.Email.Language
	if language == "" || !translator.Supports(language) {
		language = translator.DefaultLanguage()
	}

	// Gesichtserkennung
	recognizer, err := facerecognition.NewRecognizer(cfg.Recognition)
	if err != nil {
		log.Fatalf("Failed to load face recognition models: %v", err)
	}
	defer recognizer.Close()

	matcher := attendance.NewMatcher(recognizer,
		attendance.WithTolerance(cfg.Monitor.Tolerance),
		attendance.WithCatalog(translator.Catalog(language)),
	)

	// Ausgabekanäle
	hub := sse.NewHub()
	go hub.Run()

	recorder := repository.NewRecorder(repo)
	recorder.Start()

	snapshots := opencv.NewSnapshotStore(time.Minute)

	sink := attendance.MultiSink{hub, recorder, snapshots}

	var (
		mqttClient *mqtt.Client
		publisher  *homeassistant.Publisher
		discovery  *homeassistant.DiscoveryManager
	)
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT)
		publisher = homeassistant.NewPublisher(mqttClient, mqttClient.BaseTopic(), 0)
		publisher.Start()
		sink = append(sink, publisher)

		if cfg.MQTT.HomeAssistant.Enabled {
			discovery = homeassistant.NewDiscoveryManager(mqttClient, cfg.MQTT, version)
			mqttClient.OnConnect(func() {
				registerSensors(repo, discovery)
			})
		}
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		}
	} else {
		log.Info("MQTT is disabled in config.")
	}

	// Benachrichtigungen
	sender := email.NewSender(cfg.Email, roster, translator)
	var (
		alerter attendance.Alerter
		pool    *dispatch.Pool
	)
	if sender.IsConfigured() {
		pool = dispatch.NewPool(sender, repo, roster, dispatch.Options{
			Workers:    cfg.Dispatch.Workers,
			QueueSize:  cfg.Dispatch.QueueSize,
			JobTimeout: cfg.Monitor.AlertTimeout,
			Sink:       sink,
			Catalog:    translator.Catalog(language),
		})
		alerter = pool
	} else {
		log.Info("Email notifications are disabled or incomplete, guardians will not be notified")
	}

	monitor := attendance.NewMonitor(roster, matcher, opencv.NewSourceFactory(cfg.Monitor), sink, alerter, attendance.Options{
		Interval:        cfg.Monitor.Interval,
		PollInterval:    cfg.Monitor.PollInterval,
		CaptureInterval: cfg.Monitor.CaptureInterval,
		StopTimeout:     cfg.Monitor.StopTimeout,
		AlertTimeout:    cfg.Monitor.AlertTimeout,
		BufferSize:      cfg.Monitor.BufferSize,
		DescriptorSize:  cfg.Monitor.DescriptorSize,
		Catalog:         translator.Catalog(language),
		Clock:           timezone.Now,
	})
	service := &monitorService{Monitor: monitor, repo: repo, discovery: discovery}
	if err := service.Reload(context.Background()); err != nil {
		log.Warnf("Initial reference load failed, starting with an empty roster: %v", err)
	}

	cleanupService := cleanup.NewService(db.DB, cfg.Cleanup.RetentionDays, cfg.Cleanup.Interval)
	if cleanupService != nil {
		cleanupService.StartBackgroundCleanup()
	}

	// HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "HEAD"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Language", "X-Requested-With"},
		AllowCredentials: false,
		AllowAllOrigins:  true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(sessions.Sessions("attendance_session", cookie.NewStore([]byte(cfg.Session.Secret))))
	router.Use(middleware.I18n(translator))

	api := router.Group("/api")
	handlers.NewAPIHandler(handlers.Deps{
		Repo:      repo,
		Monitor:   service,
		Extractor: recognizer,
		Email:     sender,
		Cameras:   probeCameras,
		Stats: func() *utils.SystemStats {
			app := utils.AppStats{
				ActiveSessions: len(monitor.Sessions()),
				SSEClients:     hub.Clients(),
			}
			if pool != nil {
				stats := pool.Stats()
				app.Notifications = &stats
			}
			return utils.GetSystemStats(app)
		},
		DescriptorSize: cfg.Monitor.DescriptorSize,
	}).RegisterRoutes(api)
	handlers.NewEventHandler(hub).RegisterRoutes(api)
	snapshots.RegisterRoutes(api)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		log.Infof("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("Received %s, shutting down...", sig)

	// Zuerst die Sitzungen beenden, damit keine neuen Ereignisse mehr entstehen
	monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}

	if pool != nil {
		pool.Stop(cfg.Monitor.AlertTimeout)
	}
	if cleanupService != nil {
		cleanupService.StopBackgroundCleanup()
	}
	recorder.Stop()
	if publisher != nil {
		publisher.Stop()
	}
	if mqttClient != nil {
		mqttClient.Stop()
	}
	hub.Stop()

	log.Info("Server stopped.")
}

// monitorService ergänzt den Monitor um die Home-Assistant-Sensoren, die nach
// jedem erfolgreichen Neuladen der Schülerliste neu angemeldet werden.
type monitorService struct {
	*attendance.Monitor
	repo      repository.Repository
	discovery *homeassistant.DiscoveryManager
}

func (s *monitorService) Reload(ctx context.Context) error {
	if err := s.Monitor.Reload(ctx); err != nil {
		return err
	}
	if s.discovery != nil {
		registerSensors(s.repo, s.discovery)
	}
	return nil
}

func registerSensors(repo repository.Repository, discovery *homeassistant.DiscoveryManager) {
	students, err := repo.GetStudents(context.Background())
	if err != nil {
		log.Warnf("Failed to load students for Home Assistant discovery: %v", err)
		return
	}
	if err := discovery.RegisterStudents(students); err != nil {
		log.Warnf("Home Assistant discovery failed: %v", err)
		return
	}
	if err := discovery.PublishAvailability(true); err != nil {
		log.Warnf("Failed to publish availability: %v", err)
	}
}

func probeCameras() []handlers.Camera {
	found := opencv.ProbeCameras(opencv.MaxProbedCameras)
	cameras := make([]handlers.Camera, 0, len(found))
	for _, c := range found {
		cameras = append(cameras, handlers.Camera{Index: c.Index, Width: c.Width, Height: c.Height})
	}
	return cameras
}

// requestLogger protokolliert API-Anfragen über logrus
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Der SSE-Stream würde sonst bei jedem Verbindungsende protokolliert
		if c.FullPath() == "/api/events" {
			return
		}
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}
