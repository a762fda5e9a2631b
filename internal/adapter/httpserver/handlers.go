package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/claymoreai/claymore/internal/config"
	"github.com/claymoreai/claymore/internal/domain"
	"github.com/claymoreai/claymore/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg      config.Config
	Auth     *Authenticator
	Modules  usecase.ModuleService
	Run      usecase.RunService
	Data     usecase.DataService
	Jobs     usecase.JobService
	Try      usecase.TryService
	Chat     usecase.ChatService
	Validate *validator.Validate
}

// NewServer constructs a Server with a fresh validator.
func NewServer(
	cfg config.Config,
	modules usecase.ModuleService,
	run usecase.RunService,
	data usecase.DataService,
	jobs usecase.JobService,
	try usecase.TryService,
	chat usecase.ChatService,
) *Server {
	return &Server{
		Cfg:      cfg,
		Auth:     NewAuthenticator(cfg.HMACKey),
		Modules:  modules,
		Run:      run,
		Data:     data,
		Jobs:     jobs,
		Try:      try,
		Chat:     chat,
		Validate: validator.New(),
	}
}

// moduleBody is the {module: ...} request wrapper.
type moduleBody[T any] struct {
	Module T `json:"module"`
}

// jobBody is the {job: ...} request wrapper.
type jobBody[T any] struct {
	Job T `json:"job"`
}

// chatBody is the {chat: ...} request wrapper.
type chatBody[T any] struct {
	Chat T `json:"chat"`
}

// decodeValid decodes a JSON body into dst and validates it. Errors map to
// the 422 envelope with {field: message} pairs.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, CommonResponse{
			Code:    http.StatusBadRequest,
			Message: "malformed JSON body",
			Data:    map[string]any{},
		})
		return false
	}
	if err := s.Validate.Struct(dst); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = "failed " + fe.Tag() + " validation"
			}
		}
		writeError(w, r, domain.ErrValidation, fields)
		return false
	}
	return true
}

type moduleNewRequest struct {
	ModuleName     string  `json:"moduleName" validate:"required"`
	TemplateID     *string `json:"templateId"`
	WorkspaceID    string  `json:"workspaceId" validate:"required"`
	ModuleCategory string  `json:"moduleCategory" validate:"required,oneof=generator evaluator"`
}

// CreateModuleHandler handles POST /v2/module.
func (s *Server) CreateModuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleNewRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		id, err := s.Modules.Create(r.Context(), UserIDFrom(r),
			req.Module.ModuleName, req.Module.WorkspaceID, req.Module.ModuleCategory, req.Module.TemplateID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{"moduleId": id})
	}
}

// ModuleInfoHandler handles GET /v2/module?moduleId=...
func (s *Server) ModuleInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		moduleID := r.URL.Query().Get("moduleId")
		if moduleID == "" {
			writeError(w, r, domain.ErrValidation, map[string]any{"moduleId": "required"})
			return
		}
		info, err := s.Modules.Info(r.Context(), UserIDFrom(r), moduleID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{
			"module":     moduleJSON(info.Module),
			"files":      filesJSON(info.Files),
			"candidates": candidatesJSON(info.Candidates),
			"status":     info.Status,
		})
	}
}

// ModuleListHandler handles GET /v2/module/list?workspaceId=...
func (s *Server) ModuleListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := r.URL.Query().Get("workspaceId")
		if workspaceID == "" {
			writeError(w, r, domain.ErrValidation, map[string]any{"workspaceId": "required"})
			return
		}
		modules, err := s.Modules.List(r.Context(), UserIDFrom(r), workspaceID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]map[string]any, 0, len(modules))
		for _, m := range modules {
			j := moduleJSON(m.Module)
			j["status"] = m.Status
			out = append(out, j)
		}
		writeSuccess(w, map[string]any{"modules": out})
	}
}

type moduleSaveRequest struct {
	ModuleID string              `json:"moduleId" validate:"required"`
	Data     domain.ModuleConfig `json:"data"`
}

// SaveModuleHandler handles POST /v2/module/save.
func (s *Server) SaveModuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleSaveRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		m, err := s.Modules.Save(r.Context(), UserIDFrom(r), req.Module.ModuleID, req.Module.Data)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{"module": moduleJSON(m)})
	}
}

type moduleResetRequest struct {
	ModuleID   string  `json:"moduleId" validate:"required"`
	TemplateID *string `json:"templateId"`
}

// ResetModuleHandler handles POST /v2/module/reset.
func (s *Server) ResetModuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleResetRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		m, err := s.Modules.Reset(r.Context(), UserIDFrom(r), req.Module.ModuleID, req.Module.TemplateID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{"module": moduleJSON(m)})
	}
}

type moduleRunRequest struct {
	ModuleID string `json:"moduleId" validate:"required"`
}

// RunModuleHandler handles POST /v2/module/run.
func (s *Server) RunModuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleRunRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		if err := s.Run.RunModule(r.Context(), UserIDFrom(r), req.Module.ModuleID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, nil)
	}
}

type moduleTryRequest struct {
	ModuleID string  `json:"moduleId" validate:"required"`
	Input    *string `json:"input"`
}

// TryModuleHandler handles POST /v2/module/try.
func (s *Server) TryModuleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleTryRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		input := ""
		if req.Module.Input != nil {
			input = *req.Module.Input
		}
		out, err := s.Try.Try(r.Context(), UserIDFrom(r), req.Module.ModuleID, input)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{"response": out})
	}
}

type moduleSaveDataRequest struct {
	ModuleID string   `json:"moduleId" validate:"required"`
	Tags     []string `json:"tags"`
}

// SaveDataHandler handles POST /v2/module/saveData.
func (s *Server) SaveDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleSaveDataRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		if err := s.Data.SaveData(r.Context(), UserIDFrom(r), req.Module.ModuleID, req.Module.Tags); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, nil)
	}
}

type moduleAssignDataRequest struct {
	ModuleID   string   `json:"moduleId" validate:"required"`
	DatabaseID string   `json:"databaseId" validate:"required"`
	IsRaw      bool     `json:"isRaw"`
	Tags       []string `json:"tags"`
}

// AssignDataHandler handles POST /v2/module/assignData.
func (s *Server) AssignDataHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleAssignDataRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		m, err := s.Data.AssignData(r.Context(), UserIDFrom(r), req.Module.ModuleID, domain.AssignData{
			DatastoreID: req.Module.DatabaseID,
			IsRaw:       req.Module.IsRaw,
			Tags:        joinTags(req.Module.Tags),
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, map[string]any{"module": moduleJSON(m)})
	}
}

type moduleClearFilesRequest struct {
	ModuleID string `json:"moduleId" validate:"required"`
}

// ClearFilesHandler handles POST /v2/module/clearFiles.
func (s *Server) ClearFilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleBody[moduleClearFilesRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		if err := s.Modules.ClearFiles(r.Context(), UserIDFrom(r), req.Module.ModuleID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, nil)
	}
}

type jobOperateRequest struct {
	JobID     string `json:"jobId" validate:"required"`
	JobStatus int16  `json:"jobStatus"`
}

// JobOperateHandler handles POST /v2/job/operate.
func (s *Server) JobOperateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobBody[jobOperateRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		if err := s.Jobs.Operate(r.Context(), UserIDFrom(r), req.Job.JobID, req.Job.JobStatus); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeSuccess(w, nil)
	}
}

type chatTurnJSON struct {
	UserInput string `json:"userInput"`
	AIOutput  string `json:"aiOutput"`
}

type chatRequest struct {
	ModuleID    string         `json:"moduleId" validate:"required"`
	UserInput   string         `json:"userInput" validate:"required"`
	ChatHistory []chatTurnJSON `json:"chatHistory"`
}

// ChatHandler handles POST /v2/chat: the answer is appended to the supplied
// history and the whole history is returned.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatBody[chatRequest]
		if !s.decodeValid(w, r, &req) {
			return
		}
		history := make([]domain.ChatTurn, 0, len(req.Chat.ChatHistory))
		for _, turn := range req.Chat.ChatHistory {
			history = append(history, domain.ChatTurn{UserInput: turn.UserInput, AIOutput: turn.AIOutput})
		}
		out, err := s.Chat.Ask(r.Context(), UserIDFrom(r), req.Chat.ModuleID, req.Chat.UserInput, history)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		updated := append(req.Chat.ChatHistory, chatTurnJSON{UserInput: req.Chat.UserInput, AIOutput: out})
		writeSuccess(w, map[string]any{"history": updated})
	}
}

// moduleJSON renders a module in the camelCase wire shape.
func moduleJSON(m domain.Module) map[string]any {
	var updatedAt *string
	if m.UpdatedAt != nil {
		s := m.UpdatedAt.UTC().Format(time.RFC3339)
		updatedAt = &s
	}
	return map[string]any{
		"moduleId":       m.ID,
		"moduleName":     m.Name,
		"templateId":     m.TemplateID,
		"workspaceId":    m.Workspace,
		"moduleCategory": m.Category,
		"configData":     m.Config,
		"createdAt":      m.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":      updatedAt,
	}
}

func filesJSON(files []domain.FileModule) []map[string]any {
	out := make([]map[string]any, 0, len(files))
	for _, f := range files {
		out = append(out, map[string]any{
			"fileId":        f.FileID,
			"fileName":      f.File.Name,
			"finishProcess": f.FinishProcess,
		})
	}
	return out
}

func candidatesJSON(cands []domain.Candidate) []map[string]any {
	out := make([]map[string]any, 0, len(cands))
	for _, c := range cands {
		var updatedAt *string
		if c.UpdatedAt != nil {
			s := c.UpdatedAt.UTC().Format(time.RFC3339)
			updatedAt = &s
		}
		out = append(out, map[string]any{
			"candidateId": c.ID,
			"content":     c.Content,
			"extraData":   c.ExtraData,
			"createdAt":   c.CreatedAt.UTC().Format(time.RFC3339),
			"updatedAt":   updatedAt,
		})
	}
	return out
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}
