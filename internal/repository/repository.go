package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/config"
)

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
}

func NewRepository(cfg *config.Config, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// inClause 生成 "$start, $start+1, ..." 形式的占位符以及对应的参数
func inClause(ids []int64, start int) (string, []any) {
	holders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		holders[i] = fmt.Sprintf("$%d", start+i)
		args[i] = id
	}
	return strings.Join(holders, ", "), args
}

// jsonColumn 将值编码为 jsonb 列，nil 切片编码为空数组
func jsonColumn[T any](v []T) ([]byte, error) {
	if v == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v)
}

func decodeColumn(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
