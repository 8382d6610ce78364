/*
Package offer contains the OfferMirror adapters.

PURPOSE:
  Reservations are projected as sellable offers into a separate datastore
  owned by the demand side. That store is not part of the core
  transaction: the reservation engine calls the mirror after commit and
  only reports the outcome.

ADAPTERS:
  SQLMirror: writes the `ofertas` table through its own sqlx connection
  Nop:       used when no offers database is configured

ARTICLE MAPPING:
  The demand side stores the article as a closed enum. A product type is
  mapped onto it by exact match first, then by a case-insensitive partial
  match in either direction, else "Rosa".
*/
package offer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/chipiona/stock-engine/stock"
)

// Articles is the article enum accepted by the offers table, in match
// priority order.
var Articles = []string{
	"Rosa", "Clavel", "Alstromelia", "Paniculata", "Limonium",
	"Hortensia", "Uniflor", "Crisantemo", "Rosa Ramificada", "Rosa Teñida",
}

const (
	defaultArticle  = "Rosa"
	defaultLocation = "Tránsito"
)

// ArticleFor maps a product type onto the article enum.
func ArticleFor(tipo string) string {
	tipo = strings.TrimSpace(tipo)
	for _, a := range Articles {
		if a == tipo {
			return a
		}
	}
	if tipo == "" {
		return defaultArticle
	}
	for _, a := range Articles {
		if stock.ContainsName(a, tipo) || stock.ContainsName(tipo, a) {
			return a
		}
	}
	return defaultArticle
}

// SQLMirror implements stock.OfferMirror on the offers database.
type SQLMirror struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

var _ stock.OfferMirror = (*SQLMirror)(nil)

// Open connects to the offers database. The table is created only for
// sqlite; in production it belongs to the demand system.
func Open(driver, dsn string, log logrus.FieldLogger) (*SQLMirror, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open offers database: %w", err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(sqliteSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate offers database: %w", err)
		}
	}
	return NewSQLMirror(db, log), nil
}

func NewSQLMirror(db *sqlx.DB, log logrus.FieldLogger) *SQLMirror {
	return &SQLMirror{db: db, log: log.WithField("module", "offer")}
}

func (m *SQLMirror) Close() error { return m.db.Close() }

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS ofertas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		articulo TEXT NOT NULL,
		variedad TEXT NOT NULL,
		cultivo TEXT,
		fecha TEXT,
		fecha_expedicion TEXT,
		vuelo TEXT,
		cliente TEXT,
		ubicacion TEXT NOT NULL,
		cajas INTEGER NOT NULL DEFAULT 0,
		disponible INTEGER NOT NULL DEFAULT 0,
		reservado INTEGER NOT NULL DEFAULT 0,
		es_outlet INTEGER NOT NULL DEFAULT 0,
		preparado INTEGER NOT NULL DEFAULT 0
	)`

// Upsert creates the offer when o.ID is zero, otherwise syncs an existing
// one.
func (m *SQLMirror) Upsert(ctx context.Context, o stock.Offer) (int64, error) {
	if o.ID == 0 {
		return m.create(ctx, o)
	}
	return o.ID, m.sync(ctx, o)
}

func (m *SQLMirror) create(ctx context.Context, o stock.Offer) (int64, error) {
	if strings.TrimSpace(o.Variedad) == "" {
		return 0, errors.New("offer needs a variedad")
	}
	res, err := m.db.ExecContext(ctx, `
		INSERT INTO ofertas
		(articulo, variedad, cultivo, fecha, fecha_expedicion, vuelo, cliente, ubicacion,
		 cajas, disponible, reservado, es_outlet, preparado)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0)`,
		ArticleFor(o.Articulo), strings.TrimSpace(o.Variedad), nullable(o.Cultivo),
		nullable(o.Fecha), nullable(o.FechaExpedicion), nullable(o.Vuelo),
		nullable(o.Cliente), defaultLocation, o.Cajas, o.Cajas,
	)
	if err != nil {
		return 0, fmt.Errorf("insert oferta: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	m.log.WithFields(logrus.Fields{"oferta_id": id, "cajas": o.Cajas}).Debug("offer created")
	return id, nil
}

// sync sets cajas and cliente and moves disponible by the delta, clamped
// to [0, cajas].
func (m *SQLMirror) sync(ctx context.Context, o stock.Offer) error {
	var current struct {
		Cajas      int `db:"cajas"`
		Disponible int `db:"disponible"`
	}
	err := m.db.GetContext(ctx, &current, "SELECT cajas, disponible FROM ofertas WHERE id = ?", o.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.NotFoundID("oferta", o.ID)
	}
	if err != nil {
		return fmt.Errorf("select oferta: %w", err)
	}

	disponible := ClampAvailable(current.Disponible+o.Delta, o.Cajas)
	if _, err := m.db.ExecContext(ctx,
		"UPDATE ofertas SET cajas = ?, disponible = ?, cliente = ? WHERE id = ?",
		o.Cajas, disponible, nullable(o.Cliente), o.ID); err != nil {
		return fmt.Errorf("update oferta: %w", err)
	}
	m.log.WithFields(logrus.Fields{
		"oferta_id": o.ID, "cajas": o.Cajas, "disponible": disponible,
	}).Debug("offer synced")
	return nil
}

func (m *SQLMirror) Delete(ctx context.Context, id int64) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM ofertas WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete oferta: %w", err)
	}
	return nil
}

// ClampAvailable bounds an offer's available boxes to [0, cajas].
func ClampAvailable(disponible, cajas int) int {
	return max(0, min(disponible, cajas))
}

func nullable(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
