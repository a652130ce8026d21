package state

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormManager struct {
	DB *gorm.DB
}

// NewSqliteGormManager : history kept in the sqlite file at path
func NewSqliteGormManager(path string) (*GormManager, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open history %s : %w", path, err)
	}
	if err := db.AutoMigrate(&RunLog{}, &TableRunLog{}); err != nil {
		return nil, fmt.Errorf("could not migrate %w", err)
	}
	return &GormManager{DB: db}, nil
}

func (m *GormManager) OnShutDownEv() error {
	run, err := m.GetLastRun()
	if err != nil || run == nil || run.Status != Started {
		return err
	}
	return m.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&RunLog{}).Where("run_id = ? AND status = ?", run.RunID, Started).Updates(RunLog{
			Status: Aborted,
			Base:   Base{UpdatedAt: currentTime()},
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(&TableRunLog{}).Where("parent_run_id = ? AND status = ?", run.RunID, Started).Update("status", Aborted).Error
	})
}

func (m *GormManager) GetLastRun() (*RunLog, error) {
	var lastRun RunLog
	err := m.DB.Order("created_at desc").First(&lastRun).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lastRun, nil
}

func (m *GormManager) GetRunLog(runID string) (*RunLog, error) {
	var runLog RunLog
	if err := m.DB.Where("run_id = ?", runID).First(&runLog).Error; err != nil {
		return nil, err
	}
	return &runLog, nil
}

func (m *GormManager) GetTableRunLogs(runID string) ([]*TableRunLog, error) {
	var tableRunLogs []*TableRunLog
	err := m.DB.Where("parent_run_id = ?", runID).Order("id").Find(&tableRunLogs).Error
	return tableRunLogs, err
}

func (m *GormManager) InitRunLog(runID string, root string, totalTableCount int) error {
	runLog := RunLog{
		RunID:                 runID,
		Root:                  root,
		TotalTablesForThisRun: totalTableCount,
		Status:                Started,
		Base:                  Base{CreatedAt: currentTime(), UpdatedAt: currentTime()},
	}
	return m.DB.Create(&runLog).Error
}

func (m *GormManager) FailedRunLog(runID string, err error) error {
	return m.updateRunStatus(runID, Failed, err)
}

func (m *GormManager) PassedRunLog(runID string) error {
	return m.updateRunStatus(runID, Success, nil)
}

func (m *GormManager) InitTableRunLog(runID string, phase Phase, dbName string, tableName string) error {
	tableRunLog := TableRunLog{
		ParentRunID: runID,
		Phase:       phase,
		DBName:      dbName,
		TableName:   tableName,
		Status:      Started,
		Base:        Base{CreatedAt: currentTime(), UpdatedAt: currentTime()},
	}
	return m.DB.Create(&tableRunLog).Error
}

func (m *GormManager) FailedTableRun(runID string, phase Phase, dbName string, tableName string, err error) error {
	return m.updateTableRunStatus(runID, phase, dbName, tableName, TableRunLog{Status: Failed, ErrMsg: errMsg(err)})
}

func (m *GormManager) PassedTableRun(runID string, phase Phase, dbName string, tableName string, rowsWritten int64) error {
	return m.updateTableRunStatus(runID, phase, dbName, tableName, TableRunLog{Status: Success, RowWritten: rowsWritten})
}

func (m *GormManager) SkippedTableRun(runID string, phase Phase, dbName string, tableName string, reason string) error {
	return m.updateTableRunStatus(runID, phase, dbName, tableName, TableRunLog{Status: Skipped, Reason: reason})
}

func (m *GormManager) DidTableFailForRun(runID string) (bool, error) {
	var failedTableRunLogs int64
	err := m.DB.Model(&TableRunLog{}).Where("parent_run_id = ? AND status = ?", runID, Failed).Count(&failedTableRunLogs).Error
	return failedTableRunLogs > 0, err
}

func (m *GormManager) Close() error {
	db, err := m.DB.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (m *GormManager) updateRunStatus(runID string, status RunLogState, err error) error {
	return m.DB.Transaction(func(tx *gorm.DB) error {
		errTx := tx.Model(&RunLog{}).Where("run_id = ?", runID).Updates(RunLog{
			Status: status,
			ErrMsg: errMsg(err),
			Base:   Base{UpdatedAt: currentTime()},
		}).Error
		if errTx != nil {
			return errTx
		}
		if status == Failed {
			return tx.Model(&TableRunLog{}).Where("parent_run_id = ? AND status = ?", runID, Started).Update("status", Aborted).Error
		}
		return nil
	})
}

func (m *GormManager) updateTableRunStatus(runID string, phase Phase, dbName string, tableName string, upd TableRunLog) error {
	upd.UpdatedAt = currentTime()
	return m.DB.Model(&TableRunLog{}).
		Where("parent_run_id = ? AND phase = ? AND db_name = ? AND table_name = ?", runID, phase, dbName, tableName).
		Updates(&upd).Error
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func currentTime() *time.Time {
	now := time.Now()
	return &now
}
