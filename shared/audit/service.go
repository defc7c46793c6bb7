package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config controls when exports run and how long finished bookings are kept.
type Config struct {
	// Schedule is a standard five field cron spec.
	// Default: 00:01 on the 1st of every month.
	Schedule string

	// ExportDir receives the monthly workbooks.
	ExportDir string

	// DataRetentionDays is how long guest details of finished bookings are kept after check-out.
	// Default: 365 days.
	DataRetentionDays int

	// ExportOnStart triggers one export when Start is called.
	ExportOnStart bool

	Location *time.Location
	Now      func() time.Time
}

// DefaultConfig exports one minute past midnight on the 1st and keeps a year of bookings.
func DefaultConfig() *Config {
	return &Config{
		Schedule:          "1 0 1 * *",
		ExportDir:         "exports",
		DataRetentionDays: 365,
		Location:          time.UTC,
		Now:               time.Now,
	}
}

// Service writes the monthly bookings workbook and anonymizes old bookings.
type Service struct {
	config   *Config
	exporter TableExporter
	writer   func() ExcelWriter
	sender   DocumentSender
	cleaner  DataCleaner
	logger   Logger
	cron     *cron.Cron
	mu       sync.Mutex
	running  bool
}

// NewService creates a new audit service. sender and cleaner may be nil.
func NewService(
	config *Config,
	exporter TableExporter,
	writerFactory func() ExcelWriter,
	sender DocumentSender,
	cleaner DataCleaner,
	logger Logger,
) *Service {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.ExportDir == "" {
		config.ExportDir = def.ExportDir
	}
	if config.DataRetentionDays <= 0 {
		config.DataRetentionDays = def.DataRetentionDays
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if writerFactory == nil {
		writerFactory = NewExcelizeWriter
	}
	if logger == nil {
		logger = nopLogger{}
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		sender:   sender,
		cleaner:  cleaner,
		logger:   logger,
	}
}

// Start registers the monthly job. It fails on an invalid schedule.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithLocation(s.config.Location))
	if _, err := c.AddFunc(s.config.Schedule, s.RunExportAndCleanup); err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", s.config.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.running = true

	if s.config.ExportOnStart {
		go s.RunExportAndCleanup()
	}

	s.logger.Info("audit service started",
		"schedule", s.config.Schedule,
		"retention_days", s.config.DataRetentionDays,
	)
	return nil
}

// Stop waits for a running job to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("audit service stopped")
}

// RunExportAndCleanup exports now and anonymizes old bookings if the export succeeded.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.ExportNow(ctx); err != nil {
		s.logger.Error("audit export failed", "error", err)
		return
	}

	if _, err := s.CleanupNow(ctx); err != nil {
		s.logger.Error("booking cleanup failed", "error", err)
	}
}

// WriteWorkbook writes every exported table into one workbook on w,
// one sheet per table.
func (s *Service) WriteWorkbook(ctx context.Context, w io.Writer) error {
	excel, err := s.build(ctx)
	if err != nil {
		return err
	}
	defer excel.Close()

	if err := excel.Save(w); err != nil {
		return fmt.Errorf("save excel: %w", err)
	}
	return nil
}

// ExportNow saves the workbook to the export dir, sends it to staff and
// returns its path.
func (s *Service) ExportNow(ctx context.Context) (string, error) {
	excel, err := s.build(ctx)
	if err != nil {
		return "", err
	}
	defer excel.Close()

	if err := os.MkdirAll(s.config.ExportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	now := s.config.Now().In(s.config.Location)
	filename := GenerateFilenameForPreviousMonth(now)
	path := filepath.Join(s.config.ExportDir, filename)
	if err := excel.SaveToFile(path); err != nil {
		return "", fmt.Errorf("save excel: %w", err)
	}
	s.logger.Info("Audit report saved", "path", path)

	if s.sender != nil {
		prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
		caption := fmt.Sprintf("Monthly bookings report, %s %d", prev.Month(), prev.Year())
		if err := s.sender.SendDocument(ctx, path, caption); err != nil {
			return path, fmt.Errorf("send document: %w", err)
		}
		s.logger.Info("audit workbook delivered", "filename", filename)
	}
	return path, nil
}

func (s *Service) build(ctx context.Context) (ExcelWriter, error) {
	if s.exporter == nil {
		return nil, fmt.Errorf("exporter not configured")
	}

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("get table names: %w", err)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables to export")
	}

	excel := s.writer()
	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			_ = excel.Close()
			return nil, fmt.Errorf("get table %s: %w", tableName, err)
		}
		if err := s.writeTable(excel, tableName, columns, data); err != nil {
			_ = excel.Close()
			return nil, err
		}
		s.logger.Debug("table exported", "table", tableName, "rows", len(data))
	}
	return excel, nil
}

func (s *Service) writeTable(excel ExcelWriter, name string, columns []string, data []map[string]any) error {
	if err := excel.AddSheet(name); err != nil {
		return err
	}
	if err := excel.WriteHeader(columns); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	for _, row := range data {
		rowData := make([]any, len(columns))
		for i, col := range columns {
			rowData[i] = row[col]
		}
		if err := excel.WriteRow(rowData); err != nil {
			return fmt.Errorf("write row %s: %w", name, err)
		}
	}
	return nil
}

// CleanupNow anonymizes finished bookings that checked out before the
// retention window.
func (s *Service) CleanupNow(ctx context.Context) (int64, error) {
	if s.cleaner == nil {
		return 0, nil
	}

	now := s.config.Now().In(s.config.Location)
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -s.config.DataRetentionDays)

	anonymized, err := s.cleaner.AnonymizeOldBookings(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("anonymize old bookings: %w", err)
	}

	s.logger.Info("old bookings anonymized",
		"anonymized", anonymized,
		"cutoff", cutoff.Format("2006-01-02"),
	)
	return anonymized, nil
}
