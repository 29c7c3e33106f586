package handler

import (
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"go.uber.org/zap"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/scheduler"
)

// Store 是 handler 用到的持久化操作，*repository.Repository 满足该接口
type Store interface {
	GetProfessorByID(id int64) (*domain.Professor, error)
	GetProfessorsByIDs(ids []int64) ([]*domain.Professor, error)
	GetCoursesByIDs(ids []int64) ([]*domain.Course, error)
	GetRoomsByIDs(ids []int64) ([]*domain.Room, error)
	GetAvailableRooms() ([]*domain.Room, error)
	GetPreferenceByProfessorID(professorID int64) (*domain.ProfessorPreference, error)
	GetPreferencesByProfessorIDs(professorIDs []int64) ([]*domain.ProfessorPreference, error)
	UpsertPreference(pref *domain.ProfessorPreference) error
	GetRunByID(id string) (*domain.Run, error)
	GetRunsByRequester(professorID int64) ([]*domain.Run, error)
	GetAllRuns(semester string) ([]*domain.Run, error)
	DeleteRun(id string) (bool, error)
	GetRunAggregate(semester string) (*domain.RunAggregate, error)
}

type Runner interface {
	Submit(req scheduler.Request) (*scheduler.Task, error)
	Get(id string) (*scheduler.Task, bool)
	Cancel(id string) error
	Forget(id string) error
}

type ProgressReader interface {
	Load(runID string) (*domain.RunProgress, error)
	Delete(runID string) error
}

type Exporter interface {
	Render(run *domain.Run) ([]byte, error)
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	logger     *zap.Logger
	store      Store
	runner     Runner
	progress   ProgressReader
	exporter   Exporter
	metrics    *metrics.Metrics
	translator ut.Translator

	Mux *chi.Mux
}

type Dependencies struct {
	Store    Store
	Runner   Runner
	Progress ProgressReader
	Exporter Exporter
	Metrics  *metrics.Metrics
}

var semesterRegexp = regexp.MustCompile(`^\d{4}\.[12]$`)

func NewHandler(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	// 学期格式为 YYYY.1 或 YYYY.2
	if err := validate.RegisterValidation("semester", func(fl validator.FieldLevel) bool {
		return semesterRegexp.MatchString(fl.Field().String())
	}); err != nil {
		return nil, err
	}
	if err := validate.RegisterTranslation("semester", trans, func(ut ut.Translator) error {
		return ut.Add("semester", "{0}必须是 YYYY.1 或 YYYY.2 格式", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("semester", fe.Field())
		return t
	}); err != nil {
		return nil, err
	}

	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		logger:     logger,
		store:      deps.Store,
		runner:     deps.Runner,
		progress:   deps.Progress,
		exporter:   deps.Exporter,
		metrics:    deps.Metrics,
		translator: trans,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.accessLog)
	h.Mux.Use(h.recoverer)

	h.Mux.Get("/healthz", h.Healthz)
	h.Mux.Method("GET", "/metrics", h.metrics.Handler())

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/my-info", func(r chi.Router) {
			r.Use(h.myInfo)
			r.Get("/", h.GetMyInfo)
			r.Get("/preference", h.GetMyPreference)
			r.Put("/preference", h.UpdateMyPreference)
		})

		r.Route("/runs", func(r chi.Router) {
			r.With(h.myInfo).Post("/individual", h.CreateIndividualRun)
			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Post("/collective", h.CreateCollectiveRun)
			r.Get("/", h.GetRuns)
			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Get("/stats", h.GetRunStats)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.runInfo)
				r.Get("/", h.GetRun)
				r.Delete("/", h.DeleteRun)
				r.Get("/progress", h.GetRunProgress)
				r.Post("/cancel", h.CancelRun)
				r.Get("/export.pdf", h.ExportRun)
			})
		})
	})
}
