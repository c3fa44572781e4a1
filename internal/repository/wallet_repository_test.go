package repository

import (
    "context"
    "errors"
    "regexp"
    "testing"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/bus-seat-booking/internal/model"
)

func TestDebitIsConditional(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO wallet_entries").
        WithArgs(11, "debit:PNR1", "debit", 2000).
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE wallets SET balance_cents = balance_cents - ?")).
        WithArgs(2000, 11, 2000).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery("SELECT balance_cents FROM wallets").WithArgs(11).
        WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(3000)))
    mock.ExpectCommit()

    bal, err := NewWalletRepo(db).Debit(context.Background(), 11, 2000, "debit:PNR1")
    if err != nil {
        t.Fatalf("debit: %v", err)
    }
    if bal != 3000 {
        t.Fatalf("balance = %d, want 3000", bal)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestDebitInsufficientRollsBackJournal(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO wallet_entries").WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec("UPDATE wallets").WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectRollback()

    _, err = NewWalletRepo(db).Debit(context.Background(), 11, 2000, "debit:PNR1")
    if !errors.Is(err, model.ErrInsufficientFunds) {
        t.Fatalf("err = %v, want ErrInsufficientFunds", err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreditUpserts(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO wallet_entries").
        WithArgs(11, "refund:PNR1", "refund", 800).
        WillReturnResult(sqlmock.NewResult(1, 1))
    mock.ExpectExec(regexp.QuoteMeta("ON DUPLICATE KEY UPDATE balance_cents = balance_cents + VALUES(balance_cents)")).
        WithArgs(11, 800).
        WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectQuery("SELECT balance_cents FROM wallets").
        WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(800)))
    mock.ExpectCommit()

    bal, err := NewWalletRepo(db).Credit(context.Background(), 11, 800, model.EntryRefund, "refund:PNR1")
    if err != nil || bal != 800 {
        t.Fatalf("credit bal=%d err=%v", bal, err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestCreditReplayIsNoop(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO wallet_entries").
        WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'refund:PNR1'"})
    mock.ExpectRollback()
    mock.ExpectQuery("SELECT balance_cents FROM wallets").
        WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(800)))

    bal, err := NewWalletRepo(db).Credit(context.Background(), 11, 800, model.EntryRefund, "refund:PNR1")
    if err != nil || bal != 800 {
        t.Fatalf("replay bal=%d err=%v", bal, err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestBalanceWithoutWalletIsZero(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery("SELECT balance_cents FROM wallets").
        WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}))
    bal, err := NewWalletRepo(db).Balance(context.Background(), 99)
    if err != nil || bal != 0 {
        t.Fatalf("balance=%d err=%v", bal, err)
    }
}

func TestReverseUsesJournaledDebit(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery("SELECT amount_cents FROM wallet_entries").
        WithArgs("debit:PNR1", 11).
        WillReturnRows(sqlmock.NewRows([]string{"amount_cents"}).AddRow(int64(2000)))
    mock.ExpectBegin()
    mock.ExpectExec("INSERT INTO wallet_entries").
        WithArgs(11, "reversal:PNR1", "reversal", 2000).
        WillReturnResult(sqlmock.NewResult(2, 1))
    mock.ExpectExec("INSERT INTO wallets").WithArgs(11, 2000).WillReturnResult(sqlmock.NewResult(0, 2))
    mock.ExpectQuery("SELECT balance_cents FROM wallets").
        WillReturnRows(sqlmock.NewRows([]string{"balance_cents"}).AddRow(int64(5000)))
    mock.ExpectCommit()

    got, err := NewWalletRepo(db).Reverse(context.Background(), 11, "debit:PNR1", "reversal:PNR1")
    if err != nil || got != 2000 {
        t.Fatalf("reverse got=%d err=%v", got, err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}

func TestReverseWithoutDebitMovesNothing(t *testing.T) {
    db, mock, err := sqlmock.New()
    if err != nil {
        t.Fatalf("sqlmock init error: %v", err)
    }
    defer db.Close()

    mock.ExpectQuery("SELECT amount_cents FROM wallet_entries").
        WillReturnRows(sqlmock.NewRows([]string{"amount_cents"}))

    got, err := NewWalletRepo(db).Reverse(context.Background(), 11, "debit:PNR1", "reversal:PNR1")
    if err != nil || got != 0 {
        t.Fatalf("reverse got=%d err=%v", got, err)
    }
    if err := mock.ExpectationsWereMet(); err != nil {
        t.Fatalf("unmet expectations: %v", err)
    }
}
