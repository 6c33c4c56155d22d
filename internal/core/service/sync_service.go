package service

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/rl1809/storeflow/internal/core/domain"
	"github.com/rl1809/storeflow/internal/core/sheet"
	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

const (
	WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	backupNameLayout    = "2006-01-02"
)

// Export is a generated workbook ready to be sent as a download.
type Export struct {
	Filename string
	Data     []byte
}

type SaveResult struct {
	// Skipped is set when there was nothing to write.
	Skipped bool
	// Target names the connected file that was overwritten.
	Target string
	// Download is set when no file is connected and the workbook must be downloaded instead.
	Download *Export
}

type ImportResult struct {
	Imported int  `json:"imported"`
	Replaced bool `json:"replaced"`
}

type SyncStatus struct {
	Supported bool   `json:"supported"`
	Connected bool   `json:"connected"`
	FileName  string `json:"fileName,omitempty"`
	Unsaved   bool   `json:"unsaved"`
}

// SyncService keeps the product list in step with one connected workbook file.
type SyncService struct {
	inv   *Inventory
	codec port.WorkbookCodec
	files port.FileAccess
	clock port.Clock

	mu     sync.Mutex
	handle port.FileHandle

	inflight singleflight.Group
}

func NewSyncService(inv *Inventory, codec port.WorkbookCodec, files port.FileAccess, clock port.Clock) *SyncService {
	if clock == nil {
		clock = systemClock{}
	}
	return &SyncService{inv: inv, codec: codec, files: files, clock: clock}
}

func (s *SyncService) Supported() bool {
	return s.files != nil && s.files.Supported()
}

func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	st := SyncStatus{Supported: s.Supported(), Unsaved: s.inv.Unsaved()}
	if h != nil {
		st.Connected = true
		st.FileName = h.Name()
	}
	return st
}

// Connect grants a handle to the workbook at path, loads its products and
// clears the unsaved flag. A previously connected file is released without
// being written. When the new file cannot be read the previous connection stays.
func (s *SyncService) Connect(ctx context.Context, path string) (ImportResult, error) {
	v, err, _ := s.inflight.Do("connect:"+path, func() (any, error) {
		if !s.Supported() {
			return ImportResult{}, ErrFileAccessUnsupported
		}

		h, err := s.files.Open(ctx, path)
		if err != nil {
			return ImportResult{}, fmt.Errorf("open workbook: %w", err)
		}

		// The handle is only kept once its contents loaded, so a failed
		// connect never leaves a file that Save would overwrite.
		res, err := s.loadFrom(ctx, h)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("file", h.Name()).Msg("workbook not connected")
			return res, err
		}

		s.mu.Lock()
		prev := s.handle
		s.handle = h
		s.mu.Unlock()

		if prev != nil {
			logger.Logger.Info().Str("file", prev.Name()).Msg("workbook handle replaced")
		}
		logger.Logger.Info().Str("file", h.Name()).Msg("workbook connected")
		return res, nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return v.(ImportResult), nil
}

// Reload re-reads the connected workbook, replacing the product list.
func (s *SyncService) Reload(ctx context.Context) (ImportResult, error) {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		return ImportResult{}, ErrNoFileConnected
	}
	return s.loadFrom(ctx, h)
}

func (s *SyncService) loadFrom(ctx context.Context, h port.FileHandle) (ImportResult, error) {
	data, err := h.Read(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("read workbook: %w", err)
	}

	res, err := s.Import(ctx, data)
	if err != nil {
		return res, err
	}

	_, rev := s.inv.Snapshot()
	s.inv.MarkSaved(rev)
	return res, nil
}

// Disconnect forgets the connected file.
func (s *SyncService) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil {
		logger.Logger.Info().Str("file", s.handle.Name()).Msg("workbook disconnected")
	}
	s.handle = nil
}

// Save writes the products to the connected file, or produces a download when
// none is connected. An empty product list, or a connected file with nothing
// unsaved, is skipped. Concurrent calls share one write.
func (s *SyncService) Save(ctx context.Context) (SaveResult, error) {
	v, err, shared := s.inflight.Do("save", func() (any, error) {
		return s.save(ctx)
	})
	if shared {
		logger.Logger.Debug().Msg("save joined an in-flight save")
	}
	if err != nil {
		return SaveResult{}, err
	}
	return v.(SaveResult), nil
}

func (s *SyncService) save(ctx context.Context) (SaveResult, error) {
	products, rev := s.inv.Snapshot()
	if len(products) == 0 {
		return SaveResult{Skipped: true}, nil
	}

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()

	if h == nil {
		exp, err := s.encode(products)
		if err != nil {
			return SaveResult{}, err
		}
		return SaveResult{Download: &exp}, nil
	}

	if !s.inv.Unsaved() {
		return SaveResult{Skipped: true, Target: h.Name()}, nil
	}

	exp, err := s.encode(products)
	if err != nil {
		return SaveResult{}, err
	}
	if err := h.Write(ctx, exp.Data); err != nil {
		logger.Logger.Error().Err(err).Str("file", h.Name()).Msg("failed to write workbook")
		return SaveResult{}, fmt.Errorf("write workbook: %w", err)
	}
	s.inv.MarkSaved(rev)

	logger.Logger.Info().Str("file", h.Name()).Int("products", len(products)).Msg("workbook synced")
	return SaveResult{Target: h.Name()}, nil
}

// Export builds a backup workbook of the current products.
func (s *SyncService) Export(ctx context.Context) (Export, error) {
	return s.encode(s.inv.Products())
}

func (s *SyncService) encode(products []domain.Product) (Export, error) {
	data, err := s.codec.Encode(sheet.SheetName, sheet.ExportHeaders, sheet.ExportRows(products))
	if err != nil {
		return Export{}, fmt.Errorf("encode workbook: %w", err)
	}
	return Export{
		Filename: fmt.Sprintf("StoreFlow_Backup_%s.xlsx", s.clock.Now().UTC().Format(backupNameLayout)),
		Data:     data,
	}, nil
}

// Import replaces the product list with the rows of an uploaded workbook.
// A workbook without data rows leaves the current list alone.
func (s *SyncService) Import(ctx context.Context, data []byte) (ImportResult, error) {
	rows, err := s.codec.Decode(data)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("workbook import failed")
		return ImportResult{}, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}

	products := sheet.ImportRows(rows, s.clock.Now())
	if len(products) == 0 {
		return ImportResult{}, nil
	}
	if err := s.inv.ReplaceAll(ctx, products); err != nil {
		return ImportResult{Imported: len(products), Replaced: true}, err
	}
	return ImportResult{Imported: len(products), Replaced: true}, nil
}

// ValidateImport parses an uploaded workbook without touching the product list
// and reports every value that had to be defaulted.
func (s *SyncService) ValidateImport(data []byte) (sheet.ImportReport, error) {
	rows, err := s.codec.Decode(data)
	if err != nil {
		return sheet.ImportReport{}, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	return sheet.ValidateImport(rows, s.clock.Now()), nil
}
