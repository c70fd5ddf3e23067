// Command server wires the module services to their stores, assembles the
// HTTP router, and runs the server lifecycle. An empty CONFORMA_POSTGRES_URL
// selects the in-memory stores, which is how local demos and smoke tests run.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"conforma/internal/assessment"
	asadapters "conforma/internal/assessment/adapters"
	asmetrics "conforma/internal/assessment/metrics"
	assvc "conforma/internal/assessment/service"
	asmemory "conforma/internal/assessment/store/memory"
	aspostgres "conforma/internal/assessment/store/postgres"
	"conforma/internal/auditlog"
	"conforma/internal/db"
	"conforma/internal/finding"
	fadapters "conforma/internal/finding/adapters"
	fmetrics "conforma/internal/finding/metrics"
	fsvc "conforma/internal/finding/service"
	fmemory "conforma/internal/finding/store/memory"
	fpostgres "conforma/internal/finding/store/postgres"
	"conforma/internal/iam"
	iamadapters "conforma/internal/iam/adapters"
	iammetrics "conforma/internal/iam/metrics"
	"conforma/internal/iam/ratelimit"
	iamsvc "conforma/internal/iam/service"
	iammemory "conforma/internal/iam/store/memory"
	iampostgres "conforma/internal/iam/store/postgres"
	"conforma/internal/iam/store/revocation"
	"conforma/internal/iam/token"
	"conforma/internal/platform/blob"
	"conforma/internal/platform/config"
	"conforma/internal/platform/httpserver"
	"conforma/internal/platform/logger"
	"conforma/internal/platform/metrics"
	"conforma/internal/platform/redis"
	"conforma/internal/questionbank"
	qbadapters "conforma/internal/questionbank/adapters"
	qbmetrics "conforma/internal/questionbank/metrics"
	qbsvc "conforma/internal/questionbank/service"
	qbmemory "conforma/internal/questionbank/store/memory"
	qbpostgres "conforma/internal/questionbank/store/postgres"
	"conforma/internal/reporting"
	rptadapters "conforma/internal/reporting/adapters"
	rptsvc "conforma/internal/reporting/service"
	"conforma/internal/response"
	respadapters "conforma/internal/response/adapters"
	respmetrics "conforma/internal/response/metrics"
	respsvc "conforma/internal/response/service"
	respmemory "conforma/internal/response/store/memory"
	resppostgres "conforma/internal/response/store/postgres"
	"conforma/internal/standards"
	stdmetrics "conforma/internal/standards/metrics"
	stdsvc "conforma/internal/standards/service"
	stdmemory "conforma/internal/standards/store/memory"
	stdpostgres "conforma/internal/standards/store/postgres"
	"conforma/internal/tenancy"
	tenancymetrics "conforma/internal/tenancy/metrics"
	tenancysvc "conforma/internal/tenancy/service"
	tenancymemory "conforma/internal/tenancy/store/memory"
	tenancypostgres "conforma/internal/tenancy/store/postgres"
	httptransport "conforma/internal/transport/http"
	"conforma/pkg/platform/audit"
	"conforma/pkg/platform/audit/outbox"
	auditmemory "conforma/pkg/platform/audit/store/memory"
	auditpostgres "conforma/pkg/platform/audit/store/postgres"
	"conforma/pkg/platform/tx"
)

const (
	tokenIssuer   = "conforma"
	tokenAudience = "conforma-api"

	loginAttemptsPerMinute = 30
	loginBurst             = 10
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// stores groups every module's persistence ports so memory and postgres
// wiring stay side by side.
type stores struct {
	tenants tenancysvc.TenantStore
	orgs    tenancysvc.OrganizationStore
	units   tenancysvc.BusinessUnitStore

	users       iamsvc.UserStore
	roles       iamsvc.RoleStore
	permissions iamsvc.PermissionStore
	userRoles   iamsvc.UserRoleStore

	standards   stdsvc.StandardStore
	stdVersions stdsvc.VersionStore
	controls    stdsvc.ControlStore

	bankQuestions qbsvc.QuestionStore
	bankOptions   qbsvc.OptionStore
	bankMaps      qbsvc.MapStore

	assessments assvc.AssessmentStore
	scopes      assvc.ScopeStore
	asQuestions assvc.QuestionStore
	assignments assvc.AssignmentStore

	responses    respsvc.ResponseStore
	respVersions respsvc.VersionStore
	reviews      respsvc.ReviewStore
	evidence     respsvc.EvidenceStore
	links        respsvc.LinkStore

	findings  fsvc.FindingStore
	sequences fsvc.SequenceStore
	actions   fsvc.ActionStore
	tasks     fsvc.TaskStore
}

func newMemoryStores() stores {
	permissions := iammemory.NewPermissionStore()
	roles := iammemory.NewRoleStore(permissions)
	return stores{
		tenants: tenancymemory.NewTenantStore(),
		orgs:    tenancymemory.NewOrganizationStore(),
		units:   tenancymemory.NewBusinessUnitStore(),

		users:       iammemory.NewUserStore(),
		roles:       roles,
		permissions: permissions,
		userRoles:   iammemory.NewUserRoleStore(roles),

		standards:   stdmemory.NewStandardStore(),
		stdVersions: stdmemory.NewVersionStore(),
		controls:    stdmemory.NewControlStore(),

		bankQuestions: qbmemory.NewQuestionStore(),
		bankOptions:   qbmemory.NewOptionStore(),
		bankMaps:      qbmemory.NewMapStore(),

		assessments: asmemory.NewAssessmentStore(),
		scopes:      asmemory.NewScopeStore(),
		asQuestions: asmemory.NewQuestionStore(),
		assignments: asmemory.NewAssignmentStore(),

		responses:    respmemory.NewResponseStore(),
		respVersions: respmemory.NewVersionStore(),
		reviews:      respmemory.NewReviewStore(),
		evidence:     respmemory.NewEvidenceStore(),
		links:        respmemory.NewLinkStore(),

		findings:  fmemory.NewFindingStore(),
		sequences: fmemory.NewSequenceStore(),
		actions:   fmemory.NewActionStore(),
		tasks:     fmemory.NewTaskStore(),
	}
}

func newPostgresStores(database *sql.DB) stores {
	return stores{
		tenants: tenancypostgres.NewTenantStore(database),
		orgs:    tenancypostgres.NewOrganizationStore(database),
		units:   tenancypostgres.NewBusinessUnitStore(database),

		users:       iampostgres.NewUserStore(database),
		roles:       iampostgres.NewRoleStore(database),
		permissions: iampostgres.NewPermissionStore(database),
		userRoles:   iampostgres.NewUserRoleStore(database),

		standards:   stdpostgres.NewStandardStore(database),
		stdVersions: stdpostgres.NewVersionStore(database),
		controls:    stdpostgres.NewControlStore(database),

		bankQuestions: qbpostgres.NewQuestionStore(database),
		bankOptions:   qbpostgres.NewOptionStore(database),
		bankMaps:      qbpostgres.NewMapStore(database),

		assessments: aspostgres.NewAssessmentStore(database),
		scopes:      aspostgres.NewScopeStore(database),
		asQuestions: aspostgres.NewQuestionStore(database),
		assignments: aspostgres.NewAssignmentStore(database),

		responses:    resppostgres.NewResponseStore(database),
		respVersions: resppostgres.NewVersionStore(database),
		reviews:      resppostgres.NewReviewStore(database),
		evidence:     resppostgres.NewEvidenceStore(database),
		links:        resppostgres.NewLinkStore(database),

		findings:  fpostgres.NewFindingStore(database),
		sequences: fpostgres.NewSequenceStore(database),
		actions:   fpostgres.NewActionStore(database),
		tasks:     fpostgres.NewTaskStore(database),
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		database *sql.DB
		st       stores
		runner   *tx.Runner
	)
	if cfg.Postgres.URL != "" {
		var err error
		database, err = db.Open(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer database.Close()
		if err := db.RunMigrations(database); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		st = newPostgresStores(database)
		runner = tx.NewRunner(database)
		log.Info("using postgres stores")
	} else {
		st = newMemoryStores()
		log.Info("using in-memory stores")
	}

	// Audit trail. The postgres store writes to the outbox inside business
	// transactions; the relay below publishes and materializes.
	var (
		auditEvents auditlog.Lister
		recorder    *audit.Recorder
		pgAudit     *auditpostgres.Store
	)
	if database != nil {
		pgAudit = auditpostgres.New(database)
		auditEvents = pgAudit
		recorder = audit.NewRecorder(pgAudit, log)
	} else {
		memAudit := auditmemory.New()
		auditEvents = memAudit
		recorder = audit.NewRecorder(memAudit, log)
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var revocationStore iamsvc.RevocationStore
	if redisClient != nil {
		defer redisClient.Close()
		revocationStore = revocation.NewRedisStore(redisClient.Client)
	} else {
		revocationStore = revocation.NewMemoryStore()
	}

	blobStore, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	httpMetrics := metrics.NewHTTP()
	reg := prometheus.DefaultRegisterer

	tokens := token.NewJWTService(cfg.Auth.JWTSigningKey, tokenIssuer, tokenAudience)
	limiter := ratelimit.New(loginAttemptsPerMinute, loginBurst, ctx.Done())

	tenancyOpts := []tenancysvc.Option{
		tenancysvc.WithLogger(log),
		tenancysvc.WithAuditor(recorder),
		tenancysvc.WithMetrics(tenancymetrics.New()),
	}
	if runner != nil {
		tenancyOpts = append(tenancyOpts, tenancysvc.WithTxRunner(runner))
	}
	tenancySvc := tenancy.NewService(st.tenants, st.orgs, st.units, tenancyOpts...)

	standardsOpts := []stdsvc.Option{
		stdsvc.WithLogger(log),
		stdsvc.WithAuditor(recorder),
		stdsvc.WithMetrics(stdmetrics.New()),
	}
	if runner != nil {
		standardsOpts = append(standardsOpts, stdsvc.WithTxRunner(runner))
	}
	standardsSvc := standards.NewService(st.standards, st.stdVersions, st.controls, standardsOpts...)

	qbOpts := []qbsvc.Option{
		qbsvc.WithLogger(log),
		qbsvc.WithMetrics(qbmetrics.New(reg)),
	}
	if runner != nil {
		qbOpts = append(qbOpts, qbsvc.WithTxRunner(runner))
	}
	questionBankSvc := questionbank.NewService(st.bankQuestions, st.bankOptions, st.bankMaps,
		qbadapters.NewControlCatalog(standardsSvc), qbOpts...)

	iamOpts := []iamsvc.Option{
		iamsvc.WithLogger(log),
		iamsvc.WithAuditor(recorder),
		iamsvc.WithMetrics(iammetrics.New()),
		iamsvc.WithRevocation(revocationStore),
		iamsvc.WithLoginLimiter(limiter),
		iamsvc.WithPolicy(iamsvc.Policy{
			AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
			MaxLoginFails:   cfg.Auth.MaxLoginFails,
			LockoutDuration: cfg.Auth.LockoutDuration,
		}),
	}
	if runner != nil {
		iamOpts = append(iamOpts, iamsvc.WithTxRunner(runner))
	}
	iamSvc := iam.NewService(st.users, st.roles, st.permissions, st.userRoles,
		iamadapters.NewTenantChecker(tenancySvc), tokens, iamOpts...)

	// The response module is built after the assessment module, so progress
	// tracking binds late.
	responseTracker := asadapters.NewResponseTracker()
	assessmentOpts := []assvc.Option{
		assvc.WithLogger(log),
		assvc.WithAuditor(recorder),
		assvc.WithMetrics(asmetrics.New(reg)),
		assvc.WithResponseTracker(responseTracker),
	}
	if runner != nil {
		assessmentOpts = append(assessmentOpts, assvc.WithTxRunner(runner))
	}
	assessmentSvc := assessment.NewService(st.assessments, st.scopes, st.asQuestions, st.assignments,
		asadapters.NewControlCatalog(standardsSvc),
		asadapters.NewQuestionBank(questionBankSvc),
		asadapters.NewUserDirectory(iamSvc),
		assessmentOpts...)

	responseOpts := []respsvc.Option{
		respsvc.WithLogger(log),
		respsvc.WithAuditor(recorder),
		respsvc.WithMetrics(respmetrics.New(reg)),
	}
	if runner != nil {
		responseOpts = append(responseOpts, respsvc.WithTxRunner(runner))
	}
	responseSvc := response.NewService(st.responses, st.respVersions, st.reviews, st.evidence, st.links,
		respadapters.NewAssessmentDirectory(assessmentSvc),
		respadapters.NewOptionSource(questionBankSvc),
		blobStore, responseOpts...)
	responseTracker.Bind(responseSvc)

	findingOpts := []fsvc.Option{
		fsvc.WithLogger(log),
		fsvc.WithAuditor(recorder),
		fsvc.WithMetrics(fmetrics.New(reg)),
	}
	if runner != nil {
		findingOpts = append(findingOpts, fsvc.WithTxRunner(runner))
	}
	findingSvc := finding.NewService(st.findings, st.sequences, st.actions, st.tasks,
		fadapters.NewAnswerSource(responseSvc, assessmentSvc), findingOpts...)

	findingSource := rptadapters.NewFindingSource(findingSvc)
	reportingSvc := reporting.NewService(
		rptadapters.NewAssessmentSource(assessmentSvc),
		rptadapters.NewScoreSource(responseSvc),
		findingSource, findingSource,
		rptsvc.WithLogger(log))

	if err := iamSvc.SeedPermissionCatalog(ctx); err != nil {
		return fmt.Errorf("seed permission catalog: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Config:      cfg,
		Logger:      log,
		HTTPMetrics: httpMetrics,

		TokenValidator: httptransport.NewTokenValidator(tokens),
		Revocation:     revocationStore,
		Permissions:    iamSvc,

		Ready: func(ctx context.Context) error {
			if database != nil {
				if err := database.PingContext(ctx); err != nil {
					return err
				}
			}
			if redisClient != nil {
				return redisClient.Ping(ctx).Err()
			}
			return nil
		},

		Tenancy:      tenancy.NewHandler(tenancySvc, log),
		IAM:          iam.NewHandler(iamSvc, tokens, log),
		Standards:    standards.NewHandler(standardsSvc, log),
		QuestionBank: questionbank.NewHandler(questionBankSvc, log),
		Assessments:  assessment.NewHandler(assessmentSvc, log),
		Responses:    response.NewHandler(responseSvc, log),
		Findings:     finding.NewHandler(findingSvc, log),
		Reports:      reporting.NewHandler(reportingSvc, log),
		AuditLog:     auditlog.NewHandler(auditEvents, log),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if database != nil && len(cfg.Kafka.Brokers) > 0 {
		relay, err := outbox.New(database, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, pgAudit, log)
		if err != nil {
			return fmt.Errorf("start audit relay: %w", err)
		}
		g.Go(func() error {
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
