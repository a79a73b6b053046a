package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionsSeen reports whether any transaction from this source file
// has already been projected for the store. The journal processor uses
// it as a second idempotency gate behind the file log.
func (s *Store) TransactionsSeen(ctx context.Context, q Querier, storeID, fileHash string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM transactions
		WHERE store_id = ? AND source_file_hash = ?`), storeID, fileHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check transaction source hash: %w", err)
	}
	return n > 0, nil
}

// InsertTransaction writes one projected transaction.
func (s *Store) InsertTransaction(ctx context.Context, q Querier, t *Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO transactions
		(id, public_id, company_id, store_id, pos_transaction_id, terminal_id,
		 cashier_code, shift_id, user_id, kind, business_date, tx_timestamp,
		 net_total, tax_total, discount_total, grand_total, item_count,
		 is_training_mode, is_outside_sale, is_offline, is_suspended,
		 linked_transaction_id, link_reason, source_file_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		t.ID, t.PublicID, t.CompanyID, t.StoreID, t.POSTransactionID, t.TerminalID,
		t.CashierCode, t.ShiftID, t.UserID, t.Kind, t.BusinessDate.UTC(), t.Timestamp.UTC(),
		t.NetTotal, t.TaxTotal, t.DiscountTotal, t.GrandTotal, t.ItemCount,
		t.IsTrainingMode, t.IsOutsideSale, t.IsOffline, t.IsSuspended,
		t.LinkedTransactionID, t.LinkReason, t.SourceFileHash, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.POSTransactionID, err)
	}
	return nil
}

// InsertLineItem writes one projected sale line.
func (s *Store) InsertLineItem(ctx context.Context, q Querier, l *LineItem) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO line_items
		(id, transaction_id, store_id, line_number, item_code, item_type,
		 description, department_code, quantity, unit_price, extended_price,
		 tax_amount, discount_amount, is_void, is_refund)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		l.ID, l.TransactionID, l.StoreID, l.LineNumber, l.ItemCode, string(l.ItemType),
		l.Description, l.DepartmentCode, l.Quantity, l.UnitPrice, l.ExtendedPrice,
		l.TaxAmount, l.DiscountAmount, l.IsVoid, l.IsRefund)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

// InsertPayment writes one projected tender.
func (s *Store) InsertPayment(ctx context.Context, q Querier, p *Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := q.ExecContext(ctx, s.q(`INSERT INTO payments
		(id, transaction_id, store_id, tender_code, description, amount,
		 reference, card_type, card_last4, change_given)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.TransactionID, p.StoreID, p.TenderCode, p.Description, p.Amount,
		p.Reference, p.CardType, p.CardLast4, p.ChangeGiven)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

const transactionColumns = `id, public_id, company_id, store_id, pos_transaction_id, terminal_id,
	cashier_code, shift_id, user_id, kind, business_date, tx_timestamp,
	net_total, tax_total, discount_total, grand_total, item_count,
	is_training_mode, is_outside_sale, is_offline, is_suspended,
	linked_transaction_id, link_reason, source_file_hash, created_at`

func scanTransaction(scan func(...any) error) (*Transaction, error) {
	var t Transaction
	err := scan(&t.ID, &t.PublicID, &t.CompanyID, &t.StoreID, &t.POSTransactionID, &t.TerminalID,
		&t.CashierCode, &t.ShiftID, &t.UserID, &t.Kind, &t.BusinessDate, &t.Timestamp,
		&t.NetTotal, &t.TaxTotal, &t.DiscountTotal, &t.GrandTotal, &t.ItemCount,
		&t.IsTrainingMode, &t.IsOutsideSale, &t.IsOffline, &t.IsSuspended,
		&t.LinkedTransactionID, &t.LinkReason, &t.SourceFileHash, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}

// FindTransactionByPOSID resolves a POS transaction number to the most
// recently projected row, for prepay/completion linking.
func (s *Store) FindTransactionByPOSID(ctx context.Context, q Querier, storeID, posTransactionID string) (*Transaction, error) {
	row := q.QueryRowContext(ctx, s.q(`SELECT `+transactionColumns+` FROM transactions
		WHERE store_id = ? AND pos_transaction_id = ?
		ORDER BY tx_timestamp DESC LIMIT 1`), storeID, posTransactionID)
	return scanTransaction(row.Scan)
}

// ListTransactionsByDate returns a store's transactions for one business
// date in POS order.
func (s *Store) ListTransactionsByDate(ctx context.Context, storeID string, businessDate time.Time) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+transactionColumns+` FROM transactions
		WHERE store_id = ? AND business_date = ?
		ORDER BY tx_timestamp, pos_transaction_id`), storeID, businessDate.UTC())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListLineItems returns the lines of one transaction in POS order.
func (s *Store) ListLineItems(ctx context.Context, transactionID string) ([]*LineItem, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, transaction_id, store_id, line_number,
		item_code, item_type, description, department_code, quantity, unit_price,
		extended_price, tax_amount, discount_amount, is_void, is_refund
		FROM line_items WHERE transaction_id = ? ORDER BY line_number`), transactionID)
	if err != nil {
		return nil, fmt.Errorf("list line items: %w", err)
	}
	defer rows.Close()

	var out []*LineItem
	for rows.Next() {
		var l LineItem
		var itemType string
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.StoreID, &l.LineNumber,
			&l.ItemCode, &itemType, &l.Description, &l.DepartmentCode, &l.Quantity, &l.UnitPrice,
			&l.ExtendedPrice, &l.TaxAmount, &l.DiscountAmount, &l.IsVoid, &l.IsRefund); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		l.ItemType = LineItemType(itemType)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ListPayments returns the tenders of one transaction.
func (s *Store) ListPayments(ctx context.Context, transactionID string) ([]*Payment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, transaction_id, store_id, tender_code,
		description, amount, reference, card_type, card_last4, change_given
		FROM payments WHERE transaction_id = ? ORDER BY tender_code`), transactionID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.TransactionID, &p.StoreID, &p.TenderCode,
			&p.Description, &p.Amount, &p.Reference, &p.CardType, &p.CardLast4, &p.ChangeGiven); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
