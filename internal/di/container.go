package di

import (
	"github.com/Onyemech/teemplot-sub006/internal/audit"
	"github.com/Onyemech/teemplot-sub006/internal/broadcast"
	"github.com/Onyemech/teemplot-sub006/internal/handler"
	"github.com/Onyemech/teemplot-sub006/internal/mailer"
	"github.com/Onyemech/teemplot-sub006/internal/repository"
	"github.com/Onyemech/teemplot-sub006/internal/service"
	"github.com/Onyemech/teemplot-sub006/pkg/config"
	"github.com/Onyemech/teemplot-sub006/pkg/database"
	"github.com/Onyemech/teemplot-sub006/pkg/redis"
)

// Container holds all dependencies for the seats service
type Container struct {
	// Infrastructure
	DB        *database.PostgresDB
	Redis     *redis.Client
	AuditSink *audit.AsyncSink
	Mailer    mailer.Mailer
	Hub       *broadcast.Hub

	// Repositories
	Store repository.Store

	// Services
	AdmissionService  service.AdmissionService
	InvitationService service.InvitationService
	CapacityService   service.CapacityService

	// Handlers
	InvitationHandler *handler.InvitationHandler
	CapacityHandler   *handler.CapacityHandler
	HealthHandler     *handler.HealthHandler
}

// ContainerConfig contains configuration for building the container. Redis
// and Mailer may be nil; broadcast and email then degrade to no-ops.
type ContainerConfig struct {
	Config *config.Config
	DB     *database.PostgresDB
	Redis  *redis.Client
	Mailer mailer.Mailer
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:     cfg.DB,
		Redis:  cfg.Redis,
		Mailer: cfg.Mailer,
	}

	c.Store = repository.NewPostgresStore(c.DB.Pool(), &repository.PostgresStoreConfig{
		StatementTimeout: cfg.Config.Database.StatementTimeout,
		LockTimeout:      cfg.Config.Database.LockTimeout,
	})

	// Rejections must outlive the rolled-back transaction that produced
	// them, so the sink writes through its own pool
	c.AuditSink = audit.NewAsyncSink(&audit.AsyncSinkConfig{DB: c.DB.Pool()})

	var broadcaster broadcast.Broadcaster = broadcast.NopBroadcaster{}
	if c.Redis != nil {
		broadcaster = broadcast.NewRedisPublisher(c.Redis)
		c.Hub = broadcast.NewHub(broadcast.NewRedisSource(c.Redis))
	}
	if c.Mailer == nil {
		c.Mailer = mailer.NopMailer{}
	}

	admissionCfg := service.AdmissionConfig{
		ExpiryDays:    cfg.Config.Invite.ExpiryDays,
		TokenBytes:    cfg.Config.Invite.TokenBytes,
		AcceptBaseURL: cfg.Config.Invite.AcceptBaseURL,
	}

	c.AdmissionService = service.NewAdmissionService(c.Store, c.AuditSink, broadcaster, c.Mailer, admissionCfg)
	c.InvitationService = service.NewInvitationService(c.Store, c.AuditSink, broadcaster, c.Mailer, admissionCfg)
	c.CapacityService = service.NewCapacityService(c.Store)

	c.InvitationHandler = handler.NewInvitationHandler(c.AdmissionService, c.InvitationService)
	c.CapacityHandler = handler.NewCapacityHandler(c.CapacityService, c.Hub, handler.StreamConfig{
		Keepalive:    cfg.Config.Invite.StreamKeepalive,
		RetryBackoff: cfg.Config.Invite.StreamRetryBackoff,
	})

	deps := map[string]handler.Pinger{"postgres": c.DB}
	if c.Redis != nil {
		deps["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(cfg.Config.App.Name, deps)

	return c
}

// Close releases the container's background resources
func (c *Container) Close() {
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.AuditSink != nil {
		_ = c.AuditSink.Close()
	}
	if c.Mailer != nil {
		c.Mailer.Close()
	}
}
