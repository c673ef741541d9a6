package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/smmpanel/panelsync/internal/customerror"
	"github.com/smmpanel/panelsync/internal/model"
)

var (
	usersTable = `CREATE TABLE IF NOT EXISTS users(
        id          serial PRIMARY KEY,
        username    text NOT NULL,
        password    text NOT NULL,
        currency    text NOT NULL DEFAULT 'USD',
        dollar_rate numeric NOT NULL DEFAULT 0,
        balance     numeric NOT NULL DEFAULT 0,
        total_spent numeric NOT NULL DEFAULT 0,
        is_admin    boolean NOT NULL DEFAULT false,
        timestamp   timestamp,
        UNIQUE (username))`

	providersTable = `CREATE TABLE IF NOT EXISTS providers(
        id                 serial PRIMARY KEY,
        name               text NOT NULL,
        api_url            text NOT NULL,
        api_key            text NOT NULL,
        http_method        text NOT NULL DEFAULT 'POST',
        status             text NOT NULL DEFAULT 'active' check (status in ('active', 'disabled')),
        timeout_seconds    int NOT NULL DEFAULT 30,
        encoding           text NOT NULL DEFAULT '',
        request_spec       text,
        response_mapping   text,
        services_endpoint  text,
        add_endpoint       text,
        status_endpoint    text,
        balance_endpoint   text,
        refill_endpoint    text,
        cancel_endpoint    text,
        balance            numeric NOT NULL DEFAULT 0,
        balance_currency   text NOT NULL DEFAULT 'USD',
        balance_checked_at timestamp)`

	servicesTable = `CREATE TABLE IF NOT EXISTS services(
        id                  serial PRIMARY KEY,
        name                text NOT NULL,
        provider_id         bigint REFERENCES providers (id),
        provider_service_id text NOT NULL DEFAULT '',
        rate_usd            numeric NOT NULL DEFAULT 0,
        min                 int NOT NULL DEFAULT 0,
        max                 int NOT NULL DEFAULT 0)`

	ordersTable = `CREATE TABLE IF NOT EXISTS orders(
        id                serial PRIMARY KEY,
        userid            bigint NOT NULL REFERENCES users (id),
        service_id        bigint NOT NULL REFERENCES services (id),
        link              text NOT NULL,
        quantity          int NOT NULL,
        status            text NOT NULL check (status in
            ('pending', 'processing', 'in_progress', 'completed', 'partial', 'cancelled', 'refunded', 'failed')),
        provider_order_id text,
        provider_status   text,
        start_count       int NOT NULL DEFAULT 0,
        remains           int NOT NULL DEFAULT 0,
        charge            numeric NOT NULL DEFAULT 0,
        price_usd         numeric NOT NULL DEFAULT 0,
        price             numeric NOT NULL DEFAULT 0,
        api_response      text,
        last_sync_at      timestamp,
        timestamp         timestamp)`

	providerOrderLogsTable = `CREATE TABLE IF NOT EXISTS provider_order_logs(
        id          serial PRIMARY KEY,
        run_id      text NOT NULL DEFAULT '',
        order_id    bigint NOT NULL,
        provider_id bigint NOT NULL,
        action      text NOT NULL,
        status      text NOT NULL,
        response    text,
        timestamp   timestamp)`
)

const queryTimeout = 5 * time.Second

// syncableOrders selects provider-linked orders still awaiting resolution.
// The provider is resolved through the order's service, falling back to the
// most recent audit-log row when the service has no provider anymore.
const syncableOrders = `
    select o.id, o.userid, o.service_id, o.link, o.quantity, o.status,
           o.provider_order_id, o.provider_status, o.start_count, o.remains,
           o.charge, o.price_usd, o.price, o.last_sync_at,
           coalesce(s.provider_id,
               (select l.provider_id from provider_order_logs l
                 where l.order_id = o.id order by l.id desc limit 1)) as provider_id
      from orders o
      left join services s on s.id = o.service_id
     where o.provider_order_id is not null
       and lower(coalesce(o.provider_status, 'pending')) in ('pending', 'processing', 'in progress', 'in_progress')`

type Postgres struct {
	conn *pgxpool.Pool
}

func NewPostgresInstance(ctx context.Context, pgConfig *pgxpool.Config) *Postgres {

	var (
		so         sync.Once
		pgInstance *Postgres
	)

	so.Do(func() {
		db, err := pgxpool.New(ctx, pgConfig.ConnConfig.ConnString())
		if err != nil {
			log.Fatalf("It's not possible to initialise database, error: %v", err)
		}

		pgInstance = &Postgres{conn: db}
	})

	return pgInstance
}

func PGConfigParser(connString string) (*pgxpool.Config, error) {

	runtimeParams := make(map[string]string, 1)
	runtimeParams["application_name"] = "panelSync"

	connCfg, err := pgxpool.ParseConfig(connString)

	if err != nil {
		return nil, err
	}

	connCfg.MaxConns = int32(runtime.NumCPU())
	connCfg.MinConns = 1
	connCfg.ConnConfig.Config.RuntimeParams = runtimeParams

	return connCfg, err

}

func (pg *Postgres) CreateTables() error {

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tables := []struct {
		name string
		ddl  string
	}{
		{"users", usersTable},
		{"providers", providersTable},
		{"services", servicesTable},
		{"orders", ordersTable},
		{"provider_order_logs", providerOrderLogsTable},
	}

	for _, table := range tables {
		if _, err := pg.conn.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("%s table didn't create, error: %w", table.name, err)
		}
	}

	return nil
}

func (pg *Postgres) SetNewUser(username, password string) error {

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `INSERT INTO users (username, password, timestamp)
	                       VALUES ($1, $2, $3)`, username, password, time.Now())
	if err != nil {
		return err
	}

	return nil
}

func (pg *Postgres) GetUserData(username string) (int, string, bool, error) {

	var data struct {
		id      int
		pass    string
		isAdmin bool
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	row := pg.conn.QueryRow(ctx, `select id, password, is_admin from users where username = $1`, username)

	err := row.Scan(&data.id, &data.pass, &data.isAdmin)

	if err != nil {
		return 0, "", false, err
	}

	return data.id, data.pass, data.isAdmin, nil
}

func (pg *Postgres) GetUserBalance(userID int) (model.User, error) {

	var user model.User

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	row := pg.conn.QueryRow(ctx, `select id, username, currency, dollar_rate, balance, total_spent
	                                from users where id = $1`, userID)

	err := row.Scan(&user.ID, &user.Username, &user.Currency, &user.DollarRate, &user.Balance, &user.TotalSpent)

	if err != nil {
		return user, err
	}

	return user, nil
}

func (pg *Postgres) GetService(serviceID int) (model.Service, error) {

	var svc model.Service

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	row := pg.conn.QueryRow(ctx, `select id, name, provider_id, provider_service_id, rate_usd, min, max
	                                from services where id = $1`, serviceID)

	err := row.Scan(&svc.ID, &svc.Name, &svc.ProviderID, &svc.ProviderServiceID, &svc.RateUSD, &svc.Min, &svc.Max)

	if err != nil {
		return svc, err
	}

	return svc, nil
}

func (pg *Postgres) GetProvider(ctx context.Context, providerID int) (model.Provider, error) {

	var p model.Provider

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := pg.conn.QueryRow(ctx, `select id, name, api_url, api_key, http_method, status, timeout_seconds,
	                                     encoding, request_spec, response_mapping,
	                                     services_endpoint, add_endpoint, status_endpoint,
	                                     balance_endpoint, refill_endpoint, cancel_endpoint,
	                                     balance, balance_currency, balance_checked_at
	                                from providers where id = $1`, providerID)

	err := row.Scan(&p.ID, &p.Name, &p.APIURL, &p.APIKey, &p.HTTPMethod, &p.Status, &p.TimeoutSeconds,
		&p.Encoding, &p.RequestSpec, &p.ResponseMapping,
		&p.ServicesEndpoint, &p.AddEndpoint, &p.StatusEndpoint,
		&p.BalanceEndpoint, &p.RefillEndpoint, &p.CancelEndpoint,
		&p.Balance, &p.BalanceCurrency, &p.BalanceCheckedAt)

	if err != nil {
		return p, err
	}

	return p, nil
}

// CreateOrder charges the owner and inserts the order in one transaction.
// Spend is debited at creation time, not at completion.
func (pg *Postgres) CreateOrder(order model.Order) (int, error) {

	var enough bool
	var orderID int

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	tx, errTx := pg.conn.Begin(ctx)
	if errTx != nil {
		return 0, errTx
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT (balance >= $1) FROM users WHERE id = $2 FOR UPDATE`, order.Price, order.UserID)
	if errScan := row.Scan(&enough); errScan != nil {
		return 0, errScan
	}

	if !enough {
		return 0, customerror.ErrNotEnoughMoney
	}

	_, errUpdate := tx.Exec(ctx, `UPDATE users SET balance = balance - $1, total_spent = total_spent + $1
	                               WHERE id = $2`, order.Price, order.UserID)
	if errUpdate != nil {
		return 0, errUpdate
	}

	errInsert := tx.QueryRow(ctx, `INSERT INTO orders (userid, service_id, link, quantity, status, price_usd, price, timestamp)
	                                VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		order.UserID, order.ServiceID, order.Link, order.Quantity, model.StatusPending,
		order.PriceUSD, order.Price, time.Now()).Scan(&orderID)
	if errInsert != nil {
		return 0, errInsert
	}

	if errCommit := tx.Commit(ctx); errCommit != nil {
		return 0, errCommit
	}

	return orderID, nil
}

func (pg *Postgres) GetOrdersByUserID(userID int) ([]model.Order, error) {

	var orders []model.Order

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	rows, errQuery := pg.conn.Query(ctx, `select id, service_id, link, quantity, status, provider_order_id,
	                                             provider_status, start_count, remains, charge, price_usd, price,
	                                             last_sync_at, timestamp
	                                        from orders where userid = $1 order by timestamp desc`, userID)

	if errQuery != nil {
		return orders, errQuery
	}
	defer rows.Close()

	for rows.Next() {
		var order model.Order
		errScan := rows.Scan(&order.ID, &order.ServiceID, &order.Link, &order.Quantity, &order.Status,
			&order.ProviderOrderID, &order.ProviderStatus, &order.StartCount, &order.Remains,
			&order.Charge, &order.PriceUSD, &order.Price, &order.LastSyncAt, &order.CreatedAt)
		if errScan != nil {
			return orders, errScan
		}

		order.UserID = userID
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func (pg *Postgres) ListSyncableOrders(ctx context.Context, userID, limit int) ([]model.Order, error) {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := syncableOrders
	args := []any{}
	if userID > 0 {
		query += ` and o.userid = $1`
		args = append(args, userID)
	}
	query += fmt.Sprintf(` order by o.last_sync_at asc nulls first limit %d`, limit)

	rows, errQuery := pg.conn.Query(ctx, query, args...)
	if errQuery != nil {
		return nil, errQuery
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		order, errScan := scanSyncableOrder(rows)
		if errScan != nil {
			return orders, errScan
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

func (pg *Postgres) GetOrderForSync(ctx context.Context, orderID int) (model.Order, error) {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
    select o.id, o.userid, o.service_id, o.link, o.quantity, o.status,
           o.provider_order_id, o.provider_status, o.start_count, o.remains,
           o.charge, o.price_usd, o.price, o.last_sync_at,
           coalesce(s.provider_id,
               (select l.provider_id from provider_order_logs l
                 where l.order_id = o.id order by l.id desc limit 1)) as provider_id
      from orders o
      left join services s on s.id = o.service_id
     where o.id = $1`

	return scanSyncableOrder(pg.conn.QueryRow(ctx, query, orderID))
}

func scanSyncableOrder(row pgx.Row) (model.Order, error) {
	var order model.Order
	err := row.Scan(&order.ID, &order.UserID, &order.ServiceID, &order.Link, &order.Quantity, &order.Status,
		&order.ProviderOrderID, &order.ProviderStatus, &order.StartCount, &order.Remains,
		&order.Charge, &order.PriceUSD, &order.Price, &order.LastSyncAt, &order.ProviderID)
	return order, err
}

// TouchOrderSync is the unchanged-sync fast path: only the sync timestamp
// moves.
func (pg *Postgres) TouchOrderSync(ctx context.Context, orderID int) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `UPDATE orders SET last_sync_at = $1 WHERE id = $2`, time.Now(), orderID)
	return err
}

func (pg *Postgres) ApplyOrderSync(ctx context.Context, orderID int, upd model.OrderSyncUpdate) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, errTx := pg.conn.Begin(ctx)
	if errTx != nil {
		return errTx
	}
	defer tx.Rollback(ctx)

	if err := applyOrderUpdate(ctx, tx, orderID, upd); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// CompensateCancellation runs the cancellation refund atomically: the order row
// is re-read under lock so the transition is decided against the stored status,
// not the caller's snapshot, then the owner's row is locked, balance and
// total_spent move, and the order fields are written, all in one transaction.
// When the stored status is already a cancelled variant a concurrent run has
// compensated first and nothing is written. When the owner is missing the order
// update still applies without any money movement.
func (pg *Postgres) CompensateCancellation(ctx context.Context, order model.Order, upd model.OrderSyncUpdate) (model.CompensationResult, error) {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, errTx := pg.conn.Begin(ctx)
	if errTx != nil {
		return model.CompensationResult{}, errTx
	}
	defer tx.Rollback(ctx)

	var storedStatus string
	errStatus := tx.QueryRow(ctx, `select status from orders where id = $1 for update`, order.ID).Scan(&storedStatus)
	if errStatus != nil {
		return model.CompensationResult{}, errStatus
	}

	if model.IsCancelledStatus(storedStatus) {
		return model.CompensationResult{UserFound: true}, tx.Commit(ctx)
	}

	var (
		currency   string
		dollarRate decimal.Decimal
	)
	row := tx.QueryRow(ctx, `select currency, dollar_rate from users where id = $1 for update`, order.UserID)
	errScan := row.Scan(&currency, &dollarRate)

	if errors.Is(errScan, pgx.ErrNoRows) {
		if err := applyOrderUpdate(ctx, tx, order.ID, upd); err != nil {
			return model.CompensationResult{}, err
		}
		return model.CompensationResult{Applied: true}, tx.Commit(ctx)
	}
	if errScan != nil {
		return model.CompensationResult{}, errScan
	}

	comp := model.CompensationFor(order.PriceUSD, currency, dollarRate, storedStatus)

	_, errBalance := tx.Exec(ctx, `UPDATE users SET balance = balance + $1, total_spent = total_spent - $2
	                                WHERE id = $3`, comp.OrderPrice, comp.SpentAdjustment, order.UserID)
	if errBalance != nil {
		return model.CompensationResult{}, errBalance
	}

	if err := applyOrderUpdate(ctx, tx, order.ID, upd); err != nil {
		return model.CompensationResult{}, err
	}

	if errCommit := tx.Commit(ctx); errCommit != nil {
		return model.CompensationResult{}, errCommit
	}

	return model.CompensationResult{Compensation: comp, Applied: true, UserFound: true}, nil
}

func applyOrderUpdate(ctx context.Context, tx pgx.Tx, orderID int, upd model.OrderSyncUpdate) error {
	_, err := tx.Exec(ctx, `UPDATE orders
	                           SET status = $1, provider_status = $2, start_count = $3, remains = $4,
	                               charge = $5, api_response = $6, last_sync_at = $7
	                         WHERE id = $8`,
		upd.Status, upd.ProviderStatus, upd.StartCount, upd.Remains,
		upd.Charge, upd.APIResponse, time.Now(), orderID)
	return err
}

func (pg *Postgres) UpdateOrderForwarded(ctx context.Context, orderID int, providerOrderID, providerStatus string, charge decimal.Decimal, apiResponse string) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `UPDATE orders
	                                SET provider_order_id = $1, provider_status = $2, charge = $3,
	                                    api_response = $4, last_sync_at = $5
	                              WHERE id = $6`,
		providerOrderID, providerStatus, charge, apiResponse, time.Now(), orderID)
	return err
}

func (pg *Postgres) MarkOrderFailed(ctx context.Context, orderID int, reason string) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `UPDATE orders SET status = $1, api_response = $2, last_sync_at = $3
	                              WHERE id = $4`, model.StatusFailed, reason, time.Now(), orderID)
	return err
}

func (pg *Postgres) UpdateProviderBalance(ctx context.Context, providerID int, balance model.ProviderBalance) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `UPDATE providers SET balance = $1, balance_currency = $2, balance_checked_at = $3
	                              WHERE id = $4`, balance.Balance, balance.Currency, time.Now(), providerID)
	return err
}

func (pg *Postgres) AppendProviderLog(ctx context.Context, entry model.ProviderOrderLog) error {

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := pg.conn.Exec(ctx, `INSERT INTO provider_order_logs (run_id, order_id, provider_id, action, status, response, timestamp)
	                              VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.RunID, entry.OrderID, entry.ProviderID, entry.Action, entry.Status, entry.Response, time.Now())
	return err
}
