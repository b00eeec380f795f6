package factory

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"phone-auth-service/internal/audit"
	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/client"
	"phone-auth-service/internal/config"
	"phone-auth-service/internal/encryption"
	"phone-auth-service/internal/grant"
	"phone-auth-service/internal/handler"
	"phone-auth-service/internal/hashing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/otp"
	"phone-auth-service/internal/repository/memory"
	redisrepo "phone-auth-service/internal/repository/redis"
	"phone-auth-service/internal/repository/scylla"
	"phone-auth-service/internal/resend"
	"phone-auth-service/internal/resolver"
	"phone-auth-service/internal/service"
	"phone-auth-service/internal/session"
	"phone-auth-service/internal/sms"
	"phone-auth-service/internal/tls"
	"phone-auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	logger     *zap.Logger
	tlsManager *tls.TLSManager

	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	accounts       models.AccountRepository
	sessionStore   models.SessionStore
	replayGuard    otp.ReplayGuard
	smsGateway     sms.Gateway
	auditSink      *audit.MultiSink
	recorder       *audit.Recorder
	sessionManager *session.Manager
	serviceFactory *service.ServiceFactory
	grants         *grant.Registry
	tokenIssuer    *grant.TokenIssuer

	closeOnce sync.Once
}

// NewFactory loads configuration and builds every dependency. Optional
// backends that fail to start outside production fall back to in-memory
// implementations.
func NewFactory(ctx context.Context) (*Factory, error) {
	cfg := config.LoadConfig()
	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{config: cfg, logger: logger}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(cfg.Server, cfg.IsDevelopment(), util.Named("tls"))
	}

	if err := f.initializeManagers(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	if err := f.initializeClients(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeStores(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}
	if err := f.initializeServices(ctx); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_driver", cfg.Auth.StoreDriver),
		util.String("sms_driver", cfg.SMS.Driver),
		util.Strings("audit_sinks", cfg.Audit.Sinks),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeManagers(ctx context.Context) error {
	secret := []byte(f.config.Auth.MasterSecret)
	if len(secret) == 0 {
		if !f.config.IsDevelopment() {
			return errors.New("AUTH_MASTER_SECRET is required outside development")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate development secret: %w", err)
		}
		util.Warn("AUTH_MASTER_SECRET not set; using a random secret, codes will not survive a restart")
	}

	hasher, err := hashing.NewHasher(secret)
	if err != nil {
		return err
	}
	f.hasher = hasher
	f.bucketingManager = bucketing.NewBucketingManager(f.config.Bucketing)

	var kmsClient encryption.KMSDecrypter
	if f.config.KMS.Enabled {
		awsCfg, err := loadAWSConfig(ctx, f.config.KMS.Region)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config.KMS, kmsClient, hasher.DataKey())
	if err := f.encryptionManager.Init(ctx); err != nil {
		return fmt.Errorf("failed to load data key: %w", err)
	}

	util.Info("Managers initialized successfully",
		util.Int("account_buckets", f.bucketingManager.GetAccountBuckets()),
		util.Int("event_buckets", f.bucketingManager.GetEventBuckets()),
	)
	return nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// initializeClients connects the enabled backends. Failures are fatal in
// production and downgraded to warnings elsewhere.
func (f *Factory) initializeClients(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config, util.Named("redis")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
		}
	}

	if f.config.Auth.StoreDriver == config.StoreDriverScylla {
		if c, err := scylla.NewScyllaClient(f.config, util.Named("scylla")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else if err := c.EnsureSchema(ctx); err != nil {
			c.Close()
			initErrors = append(initErrors, fmt.Errorf("scylla schema: %w", err))
		} else {
			f.scyllaClient = c
		}
	}

	if f.config.Kafka.Enabled {
		if p, err := client.NewKafkaProducer(f.config, util.Named("kafka")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = p
		}
	}

	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(ctx, f.config, util.Named("elasticsearch")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(ctx, f.config, util.Named("clickhouse")); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeStores(ctx context.Context) error {
	if f.scyllaClient != nil {
		f.accounts = scylla.NewAccountRepository(f.scyllaClient, f.bucketingManager)
	} else {
		if f.config.Auth.StoreDriver == config.StoreDriverScylla {
			util.Warn("Falling back to in-memory account store")
		}
		f.accounts = memory.NewAccountStore()
	}

	if f.redisClient != nil {
		f.sessionStore = redisrepo.NewSessionCache(f.redisClient)
	} else {
		f.sessionStore = memory.NewSessionStore()
	}

	switch {
	case !f.config.Auth.SingleUseCodes:
	case f.redisClient != nil:
		f.replayGuard = redisrepo.NewConsumedCodeCache(f.redisClient)
	default:
		f.replayGuard = memory.NewConsumedCodes()
	}

	gateway, err := f.newSMSGateway()
	if err != nil {
		return err
	}
	f.smsGateway = gateway

	f.auditSink, err = f.newAuditSink(ctx)
	return err
}

func (f *Factory) newSMSGateway() (sms.Gateway, error) {
	switch f.config.SMS.Driver {
	case config.SMSDriverHTTP:
		return sms.NewHTTPGateway(f.config.SMS.APIKey, f.config.SMS.APIURL, f.config.SMS.Sender, f.config.SMS.Timeout), nil
	case config.SMSDriverKafka:
		if f.kafkaProducer == nil {
			return nil, errors.New("SMS_DRIVER=kafka but no kafka producer is available")
		}
		return sms.NewKafkaGateway(f.kafkaProducer, f.config.Kafka.SMSTopic), nil
	default:
		return sms.NewLogGateway(util.Named("sms")), nil
	}
}

func (f *Factory) newAuditSink(ctx context.Context) (*audit.MultiSink, error) {
	var sinks []audit.Sink
	for _, name := range f.config.Audit.Sinks {
		switch strings.ToLower(name) {
		case "log":
			sinks = append(sinks, audit.NewLogSink(util.Named("audit")))
		case "kafka":
			if f.kafkaProducer == nil {
				util.Warn("Kafka audit sink requested but kafka is unavailable")
				continue
			}
			sinks = append(sinks, audit.NewKafkaSink(f.kafkaProducer, f.config.Kafka.EventTopic))
		case "clickhouse":
			if f.clickhouseClient == nil {
				util.Warn("ClickHouse audit sink requested but clickhouse is unavailable")
				continue
			}
			sink := audit.NewClickHouseSink(f.clickhouseClient)
			if err := sink.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("clickhouse audit schema: %w", err)
			}
			sinks = append(sinks, sink)
		case "elasticsearch":
			if f.esClient == nil {
				util.Warn("Elasticsearch audit sink requested but elasticsearch is unavailable")
				continue
			}
			sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.EventIndex))
		default:
			return nil, fmt.Errorf("unknown audit sink %q", name)
		}
	}
	return audit.NewMultiSink(sinks...), nil
}

func (f *Factory) initializeServices(ctx context.Context) error {
	f.sessionManager = session.NewManager(f.sessionStore, f.config.Session.TTL, util.Named("session"))
	f.recorder = audit.NewRecorder(f.auditSink, f.bucketingManager, util.Named("audit"))

	deps := service.Dependencies{
		Resolver: resolver.NewResolver(f.accounts, f.hasher, f.bucketingManager, util.Named("resolver")),
		Codes: otp.NewCodeIssuer(f.hasher,
			otp.WithDigits(f.config.Auth.CodeDigits),
			otp.WithWindow(f.config.Auth.CodeWindow)),
		Resend:    resend.NewIssuer(f.encryptionManager, f.hasher, resend.WithTTL(f.config.Auth.ResendTokenTTL)),
		SMS:       f.smsGateway,
		Replay:    f.replayGuard,
		Sessions:  f.sessionManager,
		Events:    f.recorder,
		LastLogin: f.accounts,
	}
	f.serviceFactory = service.NewServiceFactory(deps, f.logger)

	registry, err := grant.NewRegistry(
		grant.NewPhoneNumberTokenGrant(f.serviceFactory.PhoneAuthService(), util.Named("grant")),
	)
	if err != nil {
		return err
	}
	f.grants = registry

	key, err := f.signingKey()
	if err != nil {
		return err
	}
	f.tokenIssuer = grant.NewTokenIssuer(key, f.config.JWT)

	util.Info("Services initialized",
		util.Strings("grant_types", f.grants.GrantTypes()),
		util.Int("audit_sinks", f.auditSink.Len()),
		util.Bool("single_use_codes", f.config.Auth.SingleUseCodes),
	)
	return nil
}

func (f *Factory) signingKey() (*rsa.PrivateKey, error) {
	key, ephemeral, err := grant.LoadSigningKey(f.config.JWT.PrivateKeyPath, f.config.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("failed to load JWT signing key: %w", err)
	}
	if ephemeral {
		util.Warn("JWT_PRIVATE_KEY_PATH not set; signing with an ephemeral key")
	}
	return key, nil
}

// Router builds the HTTP handler tree.
func (f *Factory) Router() http.Handler {
	auth := f.serviceFactory.PhoneAuthService()
	return handler.NewRouter(handler.Handlers{
		Verification: handler.NewVerificationHandler(auth, util.Named("verification")),
		Token:        handler.NewTokenHandler(f.grants, f.tokenIssuer, util.Named("token")),
		Account:      handler.NewAccountHandler(auth, f.sessionManager, f.recorder, f.config.Session, util.Named("account")),
		Health:       f,
	}, f.config.Server, util.Named("http"))
}

// HealthStatus checks every initialized backend and returns the failures
// keyed by component.
func (f *Factory) HealthStatus(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.accounts != nil {
		if err := f.accounts.HealthCheck(ctx); err != nil {
			healthErrors["account_store"] = err
		}
	} else {
		healthErrors["account_store"] = errors.New("account store not initialized")
	}
	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}
	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// HealthCheck fails when any backend is unhealthy.
func (f *Factory) HealthCheck(ctx context.Context) error {
	healthErrors := f.HealthStatus(ctx)
	names := make([]string, 0, len(healthErrors))
	for name := range healthErrors {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, healthErrors[name]))
	}
	return errors.Join(errs...)
}

func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := f.recorder.Close(ctx); err != nil {
				util.Warn("Audit events lost at shutdown", util.ErrorField(err))
			}
			cancel()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) PhoneAuthService() *service.PhoneAuthService {
	return f.serviceFactory.PhoneAuthService()
}
