package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// 运行结果（config_runs.outcome）
const (
	OutcomeRunning = 0
	OutcomeSuccess = 1
	OutcomeFail    = 2
)

// 指令日志方向（hci_cmd_log.direction）
const (
	DirOut int16 = 0 // 主机 → 控制器
	DirIn  int16 = 1 // 控制器 → 主机
)

// ConfigRun 一次配置流水线运行的持久化记录
type ConfigRun struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	AdapterID  int64      `json:"adapter_id"`
	Pipeline   string     `json:"pipeline"`
	Outcome    int        `json:"outcome"`
	FinalState string     `json:"final_state"`
	LastOpcode *int32     `json:"last_opcode,omitempty"`
	HCIStatus  *int16     `json:"hci_status,omitempty"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CmdRecord hci_cmd_log 表的一行
type CmdRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Opcode    int32     `json:"opcode"`
	Name      string    `json:"name"`
	Direction int16     `json:"direction"`
	Payload   []byte    `json:"payload,omitempty"`
	HCIStatus *int16    `json:"hci_status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository 提供最小持久化能力
type Repository struct {
	Pool *pgxpool.Pool
}

// EnsureAdapter 返回适配器ID，若不存在则插入并更新最近时间
func (r *Repository) EnsureAdapter(ctx context.Context, adapterID string) (int64, error) {
	const q = `INSERT INTO adapters (adapter_id)
               VALUES ($1)
               ON CONFLICT (adapter_id) DO UPDATE SET updated_at = NOW()
               RETURNING id`
	var id int64
	err := r.Pool.QueryRow(ctx, q, adapterID).Scan(&id)
	return id, err
}

// StartConfigRun 记录一次流水线运行的开始
func (r *Repository) StartConfigRun(ctx context.Context, runID string, adapterDBID int64, pipeline string, startedAt time.Time) error {
	const q = `INSERT INTO config_runs (run_id, adapter_id, pipeline, outcome, final_state, started_at)
               VALUES ($1,$2,$3,$4,'',$5)`
	_, err := r.Pool.Exec(ctx, q, runID, adapterDBID, pipeline, OutcomeRunning, startedAt)
	return err
}

// FinishConfigRun 写入运行终态
func (r *Repository) FinishConfigRun(ctx context.Context, runID string, success bool, finalState string, lastOpcode *int32, hciStatus *int16, errMsg *string) error {
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFail
	}
	const q = `UPDATE config_runs
               SET outcome=$2, final_state=$3, last_opcode=$4, hci_status=$5, error=$6, finished_at=NOW()
               WHERE run_id=$1`
	_, err := r.Pool.Exec(ctx, q, runID, outcome, finalState, lastOpcode, hciStatus, errMsg)
	return err
}

// InsertCmdLog 插入指令日志（最小字段）
func (r *Repository) InsertCmdLog(ctx context.Context, runID string, opcode int32, name string, direction int16, payload []byte, hciStatus *int16) error {
	const q = `INSERT INTO hci_cmd_log (run_id, opcode, name, direction, payload, hci_status, created_at)
               VALUES ($1,$2,$3,$4,$5,$6,NOW())`
	_, err := r.Pool.Exec(ctx, q, runID, opcode, name, direction, payload, hciStatus)
	return err
}

// GetConfigRun 按运行ID查询（若无返回 nil, nil）
func (r *Repository) GetConfigRun(ctx context.Context, runID string) (*ConfigRun, error) {
	const q = `SELECT id, run_id, adapter_id, pipeline, outcome, final_state, last_opcode, hci_status, error, started_at, finished_at
               FROM config_runs WHERE run_id=$1`
	var cr ConfigRun
	err := r.Pool.QueryRow(ctx, q, runID).Scan(
		&cr.ID, &cr.RunID, &cr.AdapterID, &cr.Pipeline, &cr.Outcome, &cr.FinalState,
		&cr.LastOpcode, &cr.HCIStatus, &cr.Error, &cr.StartedAt, &cr.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cr, nil
}

// ListConfigRuns 按开始时间倒序返回最近的运行
func (r *Repository) ListConfigRuns(ctx context.Context, limit int) ([]ConfigRun, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, run_id, adapter_id, pipeline, outcome, final_state, last_opcode, hci_status, error, started_at, finished_at
               FROM config_runs ORDER BY started_at DESC LIMIT $1`
	rows, err := r.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ConfigRun
	for rows.Next() {
		var cr ConfigRun
		if err := rows.Scan(
			&cr.ID, &cr.RunID, &cr.AdapterID, &cr.Pipeline, &cr.Outcome, &cr.FinalState,
			&cr.LastOpcode, &cr.HCIStatus, &cr.Error, &cr.StartedAt, &cr.FinishedAt,
		); err != nil {
			return nil, err
		}
		res = append(res, cr)
	}
	return res, rows.Err()
}

// ListCmdLog 返回某次运行的指令日志（按写入顺序）；runID 为空时返回全局最近 limit 条
func (r *Repository) ListCmdLog(ctx context.Context, runID string, limit int) ([]CmdRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if runID != "" {
		const q = `SELECT id, run_id, opcode, name, direction, payload, hci_status, created_at
                   FROM hci_cmd_log WHERE run_id=$1 ORDER BY id ASC LIMIT $2`
		rows, err = r.Pool.Query(ctx, q, runID, limit)
	} else {
		const q = `SELECT id, run_id, opcode, name, direction, payload, hci_status, created_at
                   FROM hci_cmd_log ORDER BY id DESC LIMIT $1`
		rows, err = r.Pool.Query(ctx, q, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CmdRecord
	for rows.Next() {
		var rec CmdRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Opcode, &rec.Name, &rec.Direction, &rec.Payload, &rec.HCIStatus, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// FailStaleRuns 将滞留在 running 状态超过 olderThan 的运行收敛为失败。
// 进程崩溃或强杀会留下没有终态的 config_runs 行，由后台巡检调用本方法修复。
// excludeRunIDs 列出当前仍在内存中活跃的运行，避免误伤。返回收敛的行数。
func (r *Repository) FailStaleRuns(ctx context.Context, olderThan time.Duration, excludeRunIDs []string) (int64, error) {
	if excludeRunIDs == nil {
		excludeRunIDs = []string{}
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `UPDATE config_runs
               SET outcome=$1, final_state='failed', error='stale run, converged by monitor', finished_at=NOW()
               WHERE outcome=$2
                 AND started_at < $3
                 AND NOT (run_id = ANY($4::text[]))`
	tag, err := r.Pool.Exec(ctx, q, OutcomeFail, OutcomeRunning, cutoff, excludeRunIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountRunsByOutcome 统计各结局的运行数量
func (r *Repository) CountRunsByOutcome(ctx context.Context) (map[int]int64, error) {
	rows, err := r.Pool.Query(ctx, `SELECT outcome, COUNT(*) FROM config_runs GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int]int64)
	for rows.Next() {
		var (
			outcome int
			n       int64
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		res[outcome] = n
	}
	return res, rows.Err()
}
