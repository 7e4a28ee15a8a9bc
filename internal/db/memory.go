package coloyalty

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	interf "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/interfaces"
	models "github.com/thetrinhsbay/Co-Loyalty-Ecosystem/internal/models"
)

type userEntry struct {
	mu   sync.Mutex
	user models.User
}

type merchantEntry struct {
	mu       sync.Mutex
	merchant models.Merchant
}

type productEntry struct {
	mu      sync.Mutex
	product models.Product
}

// LedgerDB keeps ledger state in memory. Mutations of one account are serialized by the
// account mutex; snapshots take the store lock exclusively.
type LedgerDB struct {
	mu        sync.RWMutex
	users     map[string]*userEntry
	emails    map[string]string
	merchants map[string]*merchantEntry
	products  map[string]*productEntry

	logMu sync.Mutex
	log   []models.Transaction // от старых к новым
}

func NewLedgerDB(seed Seed) (*LedgerDB, error) {
	db := &LedgerDB{
		users:     make(map[string]*userEntry, len(seed.Users)),
		emails:    make(map[string]string, len(seed.Users)),
		merchants: make(map[string]*merchantEntry, len(seed.Merchants)),
		products:  make(map[string]*productEntry, len(seed.Products)),
	}
	for _, u := range seed.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("seed: user id is required")
		}
		if _, ok := db.users[u.ID]; ok {
			return nil, fmt.Errorf("seed: duplicate user %s", u.ID)
		}
		if u.Points < 0 || u.WalletVND.IsNegative() {
			return nil, fmt.Errorf("seed: user %s has negative balance", u.ID)
		}
		if u.Email != "" {
			email := normalizeEmail(u.Email)
			if _, ok := db.emails[email]; ok {
				return nil, fmt.Errorf("seed: duplicate email %s", u.Email)
			}
			db.emails[email] = u.ID
		}
		db.users[u.ID] = &userEntry{user: u}
	}
	for _, m := range seed.Merchants {
		if m.ID == "" || m.ID == models.SystemMerchant {
			return nil, fmt.Errorf("seed: invalid merchant id %q", m.ID)
		}
		if _, ok := db.merchants[m.ID]; ok {
			return nil, fmt.Errorf("seed: duplicate merchant %s", m.ID)
		}
		if m.Balance.IsNegative() {
			return nil, fmt.Errorf("seed: merchant %s has negative balance", m.ID)
		}
		db.merchants[m.ID] = &merchantEntry{merchant: m}
	}
	for _, p := range seed.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("seed: product id is required")
		}
		if _, ok := db.products[p.ID]; ok {
			return nil, fmt.Errorf("seed: duplicate product %s", p.ID)
		}
		if _, ok := db.merchants[p.MerchantID]; !ok {
			return nil, fmt.Errorf("seed: product %s has unknown merchant %q", p.ID, p.MerchantID)
		}
		if p.PointPrice <= 0 || p.Stock < 0 {
			return nil, fmt.Errorf("seed: product %s has invalid price or stock", p.ID)
		}
		db.products[p.ID] = &productEntry{product: p}
	}
	return db, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type lockRef struct {
	key string
	mu  *sync.Mutex
}

// Выполнение операции над заблокированными счетами
func (l *LedgerDB) Apply(ctx context.Context, keys interf.AccountKeys, fn interf.Mutation) (*models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	ue, ok := l.users[keys.UserID]
	if !ok {
		return nil, fmt.Errorf("user %s %w", keys.UserID, models.ErrNotFound)
	}
	locks := []lockRef{{"u:" + keys.UserID, &ue.mu}}

	var re *userEntry
	if keys.ReceiverID != "" {
		re, ok = l.users[keys.ReceiverID]
		if !ok {
			return nil, fmt.Errorf("user %s: %w", keys.ReceiverID, models.ErrReceiverNotFound)
		}
		if re != ue {
			locks = append(locks, lockRef{"u:" + keys.ReceiverID, &re.mu})
		}
	}

	var me *merchantEntry
	if keys.MerchantID != "" {
		me, ok = l.merchants[keys.MerchantID]
		if !ok {
			return nil, fmt.Errorf("merchant %s %w", keys.MerchantID, models.ErrNotFound)
		}
		locks = append(locks, lockRef{"m:" + keys.MerchantID, &me.mu})
	}

	var pe *productEntry
	if keys.ProductID != "" {
		pe, ok = l.products[keys.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s %w", keys.ProductID, models.ErrNotFound)
		}
		locks = append(locks, lockRef{"p:" + keys.ProductID, &pe.mu})
	}

	// единый порядок блокировок исключает взаимоблокировку
	sort.Slice(locks, func(i, j int) bool { return locks[i].key < locks[j].key })
	for _, lk := range locks {
		lk.mu.Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].mu.Unlock()
		}
	}()

	// операция работает с копиями, состояние меняется только после успеха
	user := ue.user
	acc := &interf.Accounts{User: &user}
	if re != nil {
		if re == ue {
			acc.Receiver = acc.User
		} else {
			receiver := re.user
			acc.Receiver = &receiver
		}
	}
	if me != nil {
		merchant := me.merchant
		acc.Merchant = &merchant
	}
	if pe != nil {
		product := pe.product
		acc.Product = &product
	}

	tx, err := fn(acc)
	if err != nil {
		return nil, err
	}

	ue.user = *acc.User
	if re != nil && re != ue {
		re.user = *acc.Receiver
	}
	if me != nil {
		me.merchant = *acc.Merchant
	}
	if pe != nil {
		pe.product = *acc.Product
	}
	if tx != nil {
		l.logMu.Lock()
		l.log = append(l.log, *tx)
		l.logMu.Unlock()
	}
	return tx, nil
}

func (l *LedgerDB) GetUser(ctx context.Context, userId string) (models.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.users[userId]
	if !ok {
		return models.User{}, fmt.Errorf("user %s %w", userId, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user, nil
}

func (l *LedgerDB) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	l.mu.RLock()
	id, ok := l.emails[normalizeEmail(email)]
	l.mu.RUnlock()
	if !ok {
		return models.User{}, fmt.Errorf("%s: %w", email, models.ErrReceiverNotFound)
	}
	return l.GetUser(ctx, id)
}

func (l *LedgerDB) GetMerchant(ctx context.Context, merchantId string) (models.Merchant, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.merchants[merchantId]
	if !ok {
		return models.Merchant{}, fmt.Errorf("merchant %s %w", merchantId, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.merchant, nil
}

func (l *LedgerDB) GetProduct(ctx context.Context, productId string) (models.Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.products[productId]
	if !ok {
		return models.Product{}, fmt.Errorf("product %s %w", productId, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product, nil
}

// Каталог по id; пустой merchantId означает все товары
func (l *LedgerDB) Products(ctx context.Context, merchantId string) ([]models.Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	products := make([]models.Product, 0)
	for _, e := range l.products {
		e.mu.Lock()
		p := e.product
		e.mu.Unlock()
		if merchantId == "" || p.MerchantID == merchantId {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

// Блокировка/разблокировка пользователя
func (l *LedgerDB) SetBlacklisted(ctx context.Context, userId string, blocked bool) (models.User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.users[userId]
	if !ok {
		return models.User{}, fmt.Errorf("user %s %w", userId, models.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.user.Blacklisted = blocked
	return e.user, nil
}

// Журнал от новых к старым
func (l *LedgerDB) Transactions(ctx context.Context, filter models.TxFilter) ([]models.Transaction, error) {
	l.logMu.Lock()
	defer l.logMu.Unlock()

	tnxs := make([]models.Transaction, 0)
	for i := len(l.log) - 1; i >= 0; i-- {
		if filter.Limit > 0 && len(tnxs) >= filter.Limit {
			break
		}
		if filter.Match(l.log[i]) {
			tnxs = append(tnxs, l.log[i])
		}
	}
	return tnxs, nil
}

// Согласованный срез: ждет завершения текущих операций
func (l *LedgerDB) Snapshot(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := models.Snapshot{
		Users:        make([]models.User, 0, len(l.users)),
		Merchants:    make([]models.Merchant, 0, len(l.merchants)),
		Products:     make([]models.Product, 0, len(l.products)),
		Transactions: make([]models.Transaction, 0, len(l.log)),
	}
	for _, e := range l.users {
		snap.Users = append(snap.Users, e.user)
	}
	for _, e := range l.merchants {
		snap.Merchants = append(snap.Merchants, e.merchant)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].ID < snap.Users[j].ID })
	for _, e := range l.products {
		snap.Products = append(snap.Products, e.product)
	}
	sort.Slice(snap.Merchants, func(i, j int) bool { return snap.Merchants[i].ID < snap.Merchants[j].ID })
	sort.Slice(snap.Products, func(i, j int) bool { return snap.Products[i].ID < snap.Products[j].ID })

	l.logMu.Lock()
	for i := len(l.log) - 1; i >= 0; i-- {
		snap.Transactions = append(snap.Transactions, l.log[i])
	}
	l.logMu.Unlock()
	return snap, nil
}
