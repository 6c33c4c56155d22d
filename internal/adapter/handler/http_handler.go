package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/core/service"
	"github.com/rl1809/storeflow/internal/logger"
)

const (
	maxUploadBytes     = 10 << 20
	maxImageBytes      = 20 << 20
	defaultPageSize    = 50
	defaultRecentCount = 10
)

type ctxKey int

const userKey ctxKey = iota

type HTTPHandler struct {
	inventory *service.Inventory
	sync      *service.SyncService
	auth      *service.AuthService
	images    *service.ImageStudio
	metrics   *Metrics
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func NewHTTPHandler(inventory *service.Inventory, sync *service.SyncService, auth *service.AuthService, images *service.ImageStudio, metrics *Metrics) *HTTPHandler {
	return &HTTPHandler{
		inventory: inventory,
		sync:      sync,
		auth:      auth,
		images:    images,
		metrics:   metrics,
	}
}

// RegisterRoutes mounts the health check and the JSON API on router.
func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	public := func(path, method string, fn http.HandlerFunc) {
		router.HandleFunc(path, h.metrics.instrument(path, fn)).Methods(method)
	}
	private := func(path, method string, fn http.HandlerFunc) {
		router.HandleFunc(path, h.metrics.instrument(path, h.requireSession(fn))).Methods(method)
	}

	public("/api/auth/code", http.MethodPost, h.RequestCode)
	public("/api/auth/verify", http.MethodPost, h.Verify)
	private("/api/auth/logout", http.MethodPost, h.Logout)
	private("/api/auth/me", http.MethodGet, h.Me)

	private("/api/products", http.MethodGet, h.ListProducts)
	private("/api/products", http.MethodPost, h.CreateProduct)
	private("/api/products", http.MethodDelete, h.ClearProducts)
	private("/api/products/lookup", http.MethodGet, h.LookupProducts)
	private("/api/products/{id}", http.MethodGet, h.GetProduct)
	private("/api/products/{id}", http.MethodPut, h.UpdateProduct)
	private("/api/products/{id}", http.MethodDelete, h.DeleteProduct)

	private("/api/transactions", http.MethodGet, h.ListTransactions)
	private("/api/transactions", http.MethodPost, h.RecordTransaction)
	private("/api/stats", http.MethodGet, h.Stats)

	private("/api/workbook/import", http.MethodPost, h.ImportWorkbook)
	private("/api/workbook/validate", http.MethodPost, h.ValidateWorkbook)
	private("/api/workbook/export", http.MethodGet, h.ExportWorkbook)
	private("/api/workbook/status", http.MethodGet, h.WorkbookStatus)
	private("/api/workbook/connection", http.MethodPost, h.ConnectWorkbook)
	private("/api/workbook/connection", http.MethodDelete, h.DisconnectWorkbook)
	private("/api/workbook/save", http.MethodPost, h.SaveWorkbook)
	private("/api/workbook/reload", http.MethodPost, h.ReloadWorkbook)

	private("/api/images/edit", http.MethodPost, h.EditImage)

	private("/api/storage/status", http.MethodGet, h.StorageStatus)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requireSession rejects requests without a valid bearer token for the current user.
func (h *HTTPHandler) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Error: "missing bearer token"})
			return
		}
		email, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			h.writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, email)))
	}
}

// --- auth ---

func (h *HTTPHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.auth.RequestCode(r.Context(), req.Email); err != nil {
		var cd *service.CooldownError
		if errors.As(err, &cd) {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(cd.Remaining.Seconds()))))
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Verification code sent"})
}

func (h *HTTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := h.auth.Verify(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	user, _ := h.auth.CurrentUser(r.Context())
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Signed in",
		Data:    map[string]string{"token": token, "email": user},
	})
}

func (h *HTTPHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.sync.Disconnect()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Signed out"})
}

func (h *HTTPHandler) Me(w http.ResponseWriter, r *http.Request) {
	email, _ := r.Context().Value(userKey).(string)
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]any{
		"email":        email,
		"imageEditing": h.images.Available(),
	}})
}

// --- products ---

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := h.inventory.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, Response{Success: true, Data: products})
}

func (h *HTTPHandler) LookupProducts(w http.ResponseWriter, r *http.Request) {
	products := h.inventory.LookupForMovement(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, Response{Success: true, Data: products})
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.inventory.Product(mux.Vars(r)["id"])
	if !ok {
		h.writeError(w, service.ErrProductNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: p})
}

// productRequest mirrors domain.ProductForm but also accepts JSON numbers
// for quantity and price.
type productRequest struct {
	Name     string     `json:"name"`
	SKU      string     `json:"sku"`
	Category string     `json:"category"`
	Quantity flexString `json:"quantity"`
	Price    flexString `json:"price"`
	ImageURL string     `json:"imageUrl"`
}

func (p productRequest) form() domain.ProductForm {
	return domain.ProductForm{
		Name:     p.Name,
		SKU:      p.SKU,
		Category: p.Category,
		Quantity: string(p.Quantity),
		Price:    string(p.Price),
		ImageURL: p.ImageURL,
	}
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.inventory.AddProduct(r.Context(), req.form())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "Product created", Data: p})
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}

	p, err := h.inventory.UpdateProduct(r.Context(), mux.Vars(r)["id"], req.form())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Product updated", Data: p})
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	removed, err := h.inventory.DeleteProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]bool{"deleted": removed}})
}

// ClearProducts empties the product list. It requires confirm=true.
func (h *HTTPHandler) ClearProducts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, Response{Error: "clearing all products requires confirm=true"})
		return
	}
	if err := h.inventory.ClearAll(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "All products cleared"})
}

// --- transactions ---

type transactionPage struct {
	Items  []domain.Transaction `json:"items"`
	Total  int                  `json:"total"`
	Offset int                  `json:"offset"`
	Limit  int                  `json:"limit"`
}

func (h *HTTPHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultPageSize
	}

	items, total := h.inventory.Transactions(offset, limit)
	writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data:    transactionPage{Items: items, Total: total, Offset: max(offset, 0), Limit: limit},
	})
}

func (h *HTTPHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"productId"`
		Type      string `json:"type"`
		Quantity  int    `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	typ := domain.MovementType(strings.ToUpper(strings.TrimSpace(req.Type)))
	tx, err := h.inventory.Record(r.Context(), req.ProductID, typ, req.Quantity)
	if err != nil && tx.ID == "" {
		h.writeError(w, err)
		return
	}
	h.metrics.RecordMovement(string(tx.Type), tx.Quantity)
	h.refreshGauges()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "Transaction recorded", Data: tx})
}

func (h *HTTPHandler) Stats(w http.ResponseWriter, r *http.Request) {
	recent, err := strconv.Atoi(r.URL.Query().Get("recent"))
	if err != nil || recent <= 0 {
		recent = defaultRecentCount
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.inventory.Stats(recent)})
}

// --- workbook ---

func (h *HTTPHandler) ImportWorkbook(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	res, err := h.sync.Import(r.Context(), data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()

	msg := fmt.Sprintf("Imported %d products", res.Imported)
	if !res.Replaced {
		msg = "Workbook has no product rows, inventory unchanged"
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: msg, Data: res})
}

func (h *HTTPHandler) ValidateWorkbook(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}

	report, err := h.sync.ValidateImport(data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: report})
}

func (h *HTTPHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	exp, err := h.sync.Export(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, exp)
}

func (h *HTTPHandler) WorkbookStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: h.sync.Status()})
}

func (h *HTTPHandler) ConnectWorkbook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.sync.Connect(r.Context(), req.Path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Workbook connected", Data: res})
}

func (h *HTTPHandler) DisconnectWorkbook(w http.ResponseWriter, r *http.Request) {
	h.sync.Disconnect()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Workbook disconnected"})
}

// SaveWorkbook writes the connected file, or answers with the workbook as a
// download when nothing is connected.
func (h *HTTPHandler) SaveWorkbook(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Save(r.Context())
	if err != nil {
		h.metrics.RecordSave("failed")
		h.writeError(w, err)
		return
	}

	switch {
	case res.Download != nil:
		h.metrics.RecordSave("download")
		writeFile(w, *res.Download)
	case res.Skipped:
		h.metrics.RecordSave("skipped")
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Nothing to save", Data: map[string]any{"skipped": true, "target": res.Target}})
	default:
		h.metrics.RecordSave("written")
		writeJSON(w, http.StatusOK, Response{Success: true, Message: "Synced to " + res.Target, Data: map[string]any{"skipped": false, "target": res.Target}})
	}
}

func (h *HTTPHandler) ReloadWorkbook(w http.ResponseWriter, r *http.Request) {
	res, err := h.sync.Reload(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.refreshGauges()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Workbook reloaded", Data: res})
}

func (h *HTTPHandler) StorageStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.inventory.StorageStatus(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: st})
}

// --- images ---

func (h *HTTPHandler) EditImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	var req struct {
		Image  string `json:"image"`
		Prompt string `json:"prompt"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.images.EditImage(r.Context(), req.Image, req.Prompt)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"image": out}})
}

// --- helpers ---

func (h *HTTPHandler) refreshGauges() {
	st := h.inventory.Stats(0)
	h.metrics.SetInventory(st.TotalProducts, st.LowStockCount)
}

// statusFor maps service errors to an HTTP status and a client-facing message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrInvalidMovementType),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmailRequired),
		errors.Is(err, service.ErrEmailDomain),
		errors.Is(err, service.ErrImageRequest),
		errors.Is(err, service.ErrInvalidImage),
		errors.Is(err, service.ErrUnreadableWorkbook):
		return http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, service.ErrResendCooldown):
		return http.StatusTooManyRequests, err.Error()
	case service.IsAuthError(err):
		return http.StatusUnauthorized, rootMessage(err)
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, service.ErrNoFileConnected):
		return http.StatusConflict, rootMessage(err)
	case errors.Is(err, service.ErrFileAccessUnsupported):
		return http.StatusNotImplemented, rootMessage(err)
	case errors.Is(err, service.ErrImageEditorUnavailable):
		return http.StatusServiceUnavailable, rootMessage(err)
	case errors.Is(err, service.ErrPersist):
		return http.StatusInternalServerError, "change applied but could not be persisted"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "workbook file not found"
	case errors.Is(err, fs.ErrPermission):
		return http.StatusForbidden, "workbook path not allowed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// rootMessage returns the text of the outermost sentinel err wraps.
func rootMessage(err error) string {
	for _, target := range []error{
		service.ErrNameRequired, service.ErrInvalidMovementType, service.ErrInvalidQuantity,
		service.ErrEmailRequired, service.ErrImageRequest, service.ErrInvalidImage,
		service.ErrUnreadableWorkbook, service.ErrUnauthorized, service.ErrInvalidCode,
		service.ErrNoPendingCode, service.ErrProductNotFound, service.ErrNoFileConnected,
		service.ErrFileAccessUnsupported, service.ErrImageEditorUnavailable,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Logger.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, Response{Success: false, Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid request body"})
		return false
	}
	return true
}

// readUpload accepts a multipart "file" field or the raw request body.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Response{Error: "missing workbook file"})
			return nil, false
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, Response{Error: "workbook too large"})
		return nil, false
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, Response{Error: "empty upload"})
		return nil, false
	}
	return data, true
}

func writeFile(w http.ResponseWriter, exp service.Export) {
	w.Header().Set("Content-Type", service.WorkbookContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(exp.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(exp.Data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
