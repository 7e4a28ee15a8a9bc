package coloyalty

import (
	"context"
	"fmt"
	"os"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
	"go.uber.org/zap"
)

const journalSchema = `CREATE TABLE IF NOT EXISTS ledger_tnx (
	id           TEXT PRIMARY KEY,
	userid       TEXT NOT NULL,
	merchantid   TEXT NOT NULL,
	amount       NUMERIC NOT NULL,
	pointsearned BIGINT NOT NULL DEFAULT 0,
	pointsspent  BIGINT NOT NULL DEFAULT 0,
	platformfee  NUMERIC NOT NULL DEFAULT 0,
	typetnx      TEXT NOT NULL,
	ts           TIMESTAMPTZ NOT NULL,
	status       TEXT NOT NULL,
	receiverid   TEXT
);
CREATE INDEX IF NOT EXISTS ledger_tnx_userid ON ledger_tnx (userid, ts);
CREATE INDEX IF NOT EXISTS ledger_tnx_receiverid ON ledger_tnx (receiverid, ts);`

// Журнал операций в Postgres. Только дописывается, источник истины - память.
type JournalDB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewJournalDB(logger *zap.Logger) (db *JournalDB, err error) {
	// config
	purl := os.Getenv("LEDGER_DB")
	if purl == "" {
		return nil, fmt.Errorf("env LEDGER_DB is not set")
	}
	port := os.Getenv("LEDGER_DB_PORT")
	if port == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PORT is not set")
	}
	user := os.Getenv("LEDGER_DB_USER")
	if user == "" {
		return nil, fmt.Errorf("env LEDGER_DB_USER is not set")
	}
	password := os.Getenv("LEDGER_DB_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("env LEDGER_DB_PASSWORD is not set")
	}
	database := os.Getenv("LEDGER_DB_BASE")
	if database == "" {
		return nil, fmt.Errorf("env LEDGER_DB_BASE is not set")
	}
	dsn := "postgres://" + user + ":" + password + "@" + purl + ":" + port + "/" + database

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &JournalDB{pool, logger}, nil
}

func (j *JournalDB) EnsureSchema(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, journalSchema)
	return err
}

func (j *JournalDB) Close() {
	j.pool.Close()
}

func (j *JournalDB) logSQL(err error, sql string, args []any) {
	j.logger.Error("SQL error",
		zap.Error(err),
		zap.String("query", sql),
		zap.Any("args", args),
	)
}

func (j *JournalDB) Append(ctx context.Context, tx models.Transaction) error {
	receiver := pgtype.Text{Status: pgtype.Null}
	if tx.ReceiverID != "" {
		receiver = pgtype.Text{String: tx.ReceiverID, Status: pgtype.Present}
	}

	sql, args, err := appendQuery(tx, receiver)
	if err != nil {
		j.logSQL(err, sql, args)
		return err
	}

	_, err = j.pool.Exec(ctx, sql, args...)
	if err != nil {
		j.logSQL(err, sql, args)
		return err
	}
	return nil
}

func appendQuery(tx models.Transaction, receiver pgtype.Text) (string, []any, error) {
	return sq.Insert("ledger_tnx").
		Columns("id", "userid", "merchantid", "amount", "pointsearned", "pointsspent", "platformfee", "typetnx", "ts", "status", "receiverid").
		Values(tx.ID, tx.UserID, tx.MerchantID,
			sq.Expr("?::numeric", tx.Amount.String()),
			tx.PointsEarned, tx.PointsSpent,
			sq.Expr("?::numeric", tx.PlatformFee.String()),
			string(tx.Type), tx.Timestamp, string(tx.Status), receiver).
		Suffix("ON CONFLICT (id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func historyQuery(userId string, from time.Time, to time.Time) (string, []any, error) {
	q := sq.Select("id", "userid", "merchantid", "amount::text", "pointsearned", "pointsspent", "platformfee::text", "typetnx", "ts", "status", "receiverid").
		From("ledger_tnx").
		Where(sq.Or{sq.Eq{"userid": userId}, sq.Eq{"receiverid": userId}})
	if !from.IsZero() {
		q = q.Where(sq.GtOrEq{"ts": from})
	}
	if !to.IsZero() {
		q = q.Where(sq.LtOrEq{"ts": to})
	}
	return q.OrderBy("ts DESC").PlaceholderFormat(sq.Dollar).ToSql()
}

// История пользователя, включая входящие переводы, от новых к старым
func (j *JournalDB) History(ctx context.Context, userId string, from time.Time, to time.Time) ([]models.Transaction, error) {
	conn, err := j.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	sql, args, err := historyQuery(userId, from, to)
	if err != nil {
		j.logSQL(err, sql, args)
		return nil, err
	}

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		j.logSQL(err, sql, args)
		return nil, err
	}
	defer rows.Close()

	tnxs := make([]models.Transaction, 0)
	for rows.Next() {
		var tx models.Transaction
		var amount, fee, txType, status string
		var receiver pgtype.Text
		err = rows.Scan(&tx.ID, &tx.UserID, &tx.MerchantID, &amount, &tx.PointsEarned, &tx.PointsSpent, &fee, &txType, &tx.Timestamp, &status, &receiver)
		if err != nil {
			return nil, err
		}
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		tx.PlatformFee, err = decimal.NewFromString(fee)
		if err != nil {
			return nil, err
		}
		tx.Type = models.TxType(txType)
		tx.Status = models.TxStatus(status)
		tx.ReceiverID = receiver.String
		tnxs = append(tnxs, tx)
	}
	return tnxs, rows.Err()
}
