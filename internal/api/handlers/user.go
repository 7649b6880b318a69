package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dom/accounts/internal/api/middleware"
	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/domain"
	"github.com/dom/accounts/internal/service"
	"github.com/google/uuid"
)

type UserHandler struct {
	userService *service.UserService
	uploads     uploads
	log         *slog.Logger
}

func NewUserHandler(userService *service.UserService, cfg *config.Config, log *slog.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		uploads: uploads{
			dir:      cfg.UploadDir,
			maxBytes: cfg.MaxUploadBytes,
			log:      log,
		},
		log: log,
	}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.uploads.parse(w, r) {
		return
	}

	req := RegisterRequest{
		UserName: r.FormValue("userName"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullName"),
		Password: r.FormValue("password"),
	}

	avatar, err := h.uploads.save(r, "avatar")
	if err != nil {
		h.uploads.cleanup(r)
		writeError(w, h.log, err)
		return
	}
	cover, err := h.uploads.save(r, "coverImage")
	if err != nil {
		h.uploads.cleanup(r, avatar)
		writeError(w, h.log, err)
		return
	}
	defer h.uploads.cleanup(r, avatar, cover)

	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if avatar == "" {
		response.Error(w, http.StatusBadRequest, "avatar file is required")
		return
	}

	user, err := h.userService.Register(r.Context(), service.RegisterInput{
		UserName:       req.UserName,
		Email:          req.Email,
		FullName:       req.FullName,
		Password:       req.Password,
		AvatarPath:     avatar,
		CoverImagePath: cover,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusCreated, user, "user registered successfully")
}

func (h *UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	response.JSON(w, http.StatusOK, user, "current user fetched successfully")
}

func (h *UserHandler) UpdateAccountDetails(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	var req UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.userService.UpdateAccountDetails(r.Context(), user.ID, service.AccountDetailsInput{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, updated, "account details updated successfully")
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", h.userService.UpdateAvatar, "avatar updated successfully")
}

func (h *UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", h.userService.UpdateCoverImage, "cover image updated successfully")
}

func (h *UserHandler) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, id uuid.UUID, localPath string) (*domain.User, error),
	message string,
) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, service.ErrUnauthorized.Error())
		return
	}

	if !h.uploads.parse(w, r) {
		return
	}

	path, err := h.uploads.save(r, field)
	defer h.uploads.cleanup(r, path)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if path == "" {
		response.Error(w, http.StatusBadRequest, field+" file is missing")
		return
	}

	updated, err := update(r.Context(), user.ID, path)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	response.JSON(w, http.StatusOK, updated, message)
}
