package sqldb

// Both schemas describe the same tables. Dates and timestamps are stored as
// text (YYYY-MM-DD, RFC3339, YYYY-Www) so the two dialects scan alike.

func schemaFor(driver string) []string {
	if driver == DriverMySQL {
		return mysqlSchema
	}
	return sqliteSchema
}

var sqliteSchema = []string{
	// Catalog
	`CREATE TABLE IF NOT EXISTS tipos_producto (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS proveedores (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS delegaciones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS comerciales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		nombre TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS productos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tipo_id INTEGER REFERENCES tipos_producto(id),
		tipo TEXT NOT NULL DEFAULT '',
		nombre TEXT NOT NULL,
		proveedor TEXT NOT NULL,
		codigo_erp TEXT,
		precio TEXT,
		cultivo TEXT NOT NULL DEFAULT '',
		vuelo TEXT NOT NULL DEFAULT '',
		fecha TEXT,
		cantidad INTEGER NOT NULL DEFAULT 0 CHECK (cantidad >= 0),
		pedido INTEGER NOT NULL DEFAULT 0 CHECK (pedido >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_productos_nombre ON productos(nombre)`,

	// Lot ledger
	`CREATE TABLE IF NOT EXISTS compras_stock (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		producto_id INTEGER NOT NULL REFERENCES productos(id),
		proveedor_id INTEGER NOT NULL REFERENCES proveedores(id),
		semana TEXT NOT NULL,
		cantidad_comprada INTEGER NOT NULL CHECK (cantidad_comprada > 0),
		cantidad_disponible INTEGER NOT NULL,
		precio_unitario TEXT,
		created_at TEXT NOT NULL,
		CHECK (cantidad_disponible >= 0 AND cantidad_disponible <= cantidad_comprada)
	)`,
	// FIFO walk (hot path)
	`CREATE INDEX IF NOT EXISTS idx_compras_fifo
		ON compras_stock(producto_id, proveedor_id, semana, id)`,

	// Allocations
	`CREATE TABLE IF NOT EXISTS asignaciones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		producto_id INTEGER NOT NULL REFERENCES productos(id),
		producto_nombre TEXT NOT NULL,
		proveedor_id INTEGER NOT NULL REFERENCES proveedores(id),
		proveedor_nombre TEXT NOT NULL,
		delegacion_id INTEGER NOT NULL REFERENCES delegaciones(id),
		delegacion_nombre TEXT NOT NULL,
		cantidad INTEGER NOT NULL CHECK (cantidad > 0),
		semana TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		pre_reserva_id INTEGER,
		estado TEXT NOT NULL DEFAULT 'activa' CHECK (estado IN ('activa', 'anulada')),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_asignaciones_producto_delegacion
		ON asignaciones(producto_id, delegacion_id)`,
	`CREATE TABLE IF NOT EXISTS asignacion_lotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asignacion_id INTEGER NOT NULL REFERENCES asignaciones(id),
		compra_id INTEGER NOT NULL REFERENCES compras_stock(id),
		cantidad INTEGER NOT NULL CHECK (cantidad <> 0),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_asignacion_lotes_asignacion ON asignacion_lotes(asignacion_id)`,
	`CREATE INDEX IF NOT EXISTS idx_asignacion_lotes_compra ON asignacion_lotes(compra_id)`,

	// Reservations. comercial_id has no foreign key: converted
	// pre-reservations record the delegation as the party.
	`CREATE TABLE IF NOT EXISTS reservas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comercial_id INTEGER NOT NULL,
		comercial_nombre TEXT NOT NULL,
		producto_id INTEGER NOT NULL REFERENCES productos(id),
		producto_nombre TEXT NOT NULL,
		cantidad INTEGER NOT NULL CHECK (cantidad > 0),
		fecha TEXT NOT NULL,
		semana TEXT,
		id_oferta INTEGER,
		pre_reserva_id INTEGER,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservas_producto ON reservas(producto_id)`,
	`CREATE TABLE IF NOT EXISTS pre_reservas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		delegacion_id INTEGER NOT NULL REFERENCES delegaciones(id),
		delegacion_nombre TEXT NOT NULL,
		tipo TEXT NOT NULL DEFAULT '',
		producto_deseado TEXT NOT NULL,
		cantidad INTEGER NOT NULL CHECK (cantidad > 0),
		semana TEXT NOT NULL,
		estado TEXT NOT NULL DEFAULT 'pendiente'
			CHECK (estado IN ('pendiente', 'convertida', 'cancelada')),
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pre_reservas_estado ON pre_reservas(estado)`,

	// Audit
	`CREATE TABLE IF NOT EXISTS auditoria (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		accion TEXT NOT NULL,
		entidad TEXT NOT NULL,
		entidad_id INTEGER NOT NULL,
		payload_json TEXT,
		created_at TEXT NOT NULL
	)`,
}

const mysqlTable = ` ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS tipos_producto (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(255) NOT NULL
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS proveedores (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(255) NOT NULL
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS delegaciones (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(255) NOT NULL
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS comerciales (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		nombre VARCHAR(255) NOT NULL
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS productos (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		tipo_id BIGINT NULL,
		tipo VARCHAR(255) NOT NULL DEFAULT '',
		nombre VARCHAR(255) NOT NULL,
		proveedor VARCHAR(255) NOT NULL,
		codigo_erp VARCHAR(64) NULL,
		precio DECIMAL(12,4) NULL,
		cultivo VARCHAR(255) NOT NULL DEFAULT '',
		vuelo VARCHAR(255) NOT NULL DEFAULT '',
		fecha VARCHAR(10) NULL,
		cantidad INT NOT NULL DEFAULT 0,
		pedido INT NOT NULL DEFAULT 0,
		KEY idx_productos_nombre (nombre),
		CONSTRAINT fk_productos_tipo FOREIGN KEY (tipo_id) REFERENCES tipos_producto(id),
		CONSTRAINT chk_productos_cantidad CHECK (cantidad >= 0),
		CONSTRAINT chk_productos_pedido CHECK (pedido >= 0)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS compras_stock (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		producto_id BIGINT NOT NULL,
		proveedor_id BIGINT NOT NULL,
		semana CHAR(8) NOT NULL,
		cantidad_comprada INT NOT NULL,
		cantidad_disponible INT NOT NULL,
		precio_unitario DECIMAL(12,4) NULL,
		created_at VARCHAR(32) NOT NULL,
		KEY idx_compras_fifo (producto_id, proveedor_id, semana, id),
		CONSTRAINT fk_compras_producto FOREIGN KEY (producto_id) REFERENCES productos(id),
		CONSTRAINT fk_compras_proveedor FOREIGN KEY (proveedor_id) REFERENCES proveedores(id),
		CONSTRAINT chk_compras_comprada CHECK (cantidad_comprada > 0),
		CONSTRAINT chk_compras_disponible CHECK (cantidad_disponible >= 0 AND cantidad_disponible <= cantidad_comprada)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS asignaciones (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		producto_id BIGINT NOT NULL,
		producto_nombre VARCHAR(255) NOT NULL,
		proveedor_id BIGINT NOT NULL,
		proveedor_nombre VARCHAR(255) NOT NULL,
		delegacion_id BIGINT NOT NULL,
		delegacion_nombre VARCHAR(255) NOT NULL,
		cantidad INT NOT NULL,
		semana CHAR(8) NOT NULL,
		idempotency_key VARCHAR(191) NULL,
		pre_reserva_id BIGINT NULL,
		estado VARCHAR(16) NOT NULL DEFAULT 'activa',
		created_at VARCHAR(32) NOT NULL,
		UNIQUE KEY uq_asignaciones_idempotency (idempotency_key),
		KEY idx_asignaciones_producto_delegacion (producto_id, delegacion_id),
		CONSTRAINT fk_asignaciones_producto FOREIGN KEY (producto_id) REFERENCES productos(id),
		CONSTRAINT fk_asignaciones_proveedor FOREIGN KEY (proveedor_id) REFERENCES proveedores(id),
		CONSTRAINT fk_asignaciones_delegacion FOREIGN KEY (delegacion_id) REFERENCES delegaciones(id),
		CONSTRAINT chk_asignaciones_cantidad CHECK (cantidad > 0)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS asignacion_lotes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		asignacion_id BIGINT NOT NULL,
		compra_id BIGINT NOT NULL,
		cantidad INT NOT NULL,
		created_at VARCHAR(32) NOT NULL,
		KEY idx_asignacion_lotes_asignacion (asignacion_id),
		KEY idx_asignacion_lotes_compra (compra_id),
		CONSTRAINT fk_asignacion_lotes_asignacion FOREIGN KEY (asignacion_id) REFERENCES asignaciones(id),
		CONSTRAINT fk_asignacion_lotes_compra FOREIGN KEY (compra_id) REFERENCES compras_stock(id),
		CONSTRAINT chk_asignacion_lotes_cantidad CHECK (cantidad <> 0)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS reservas (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		comercial_id BIGINT NOT NULL,
		comercial_nombre VARCHAR(255) NOT NULL,
		producto_id BIGINT NOT NULL,
		producto_nombre VARCHAR(255) NOT NULL,
		cantidad INT NOT NULL,
		fecha VARCHAR(10) NOT NULL,
		semana CHAR(8) NULL,
		id_oferta BIGINT NULL,
		pre_reserva_id BIGINT NULL,
		created_at VARCHAR(32) NOT NULL,
		KEY idx_reservas_producto (producto_id),
		CONSTRAINT fk_reservas_producto FOREIGN KEY (producto_id) REFERENCES productos(id),
		CONSTRAINT chk_reservas_cantidad CHECK (cantidad > 0)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS pre_reservas (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		delegacion_id BIGINT NOT NULL,
		delegacion_nombre VARCHAR(255) NOT NULL,
		tipo VARCHAR(255) NOT NULL DEFAULT '',
		producto_deseado VARCHAR(255) NOT NULL,
		cantidad INT NOT NULL,
		semana CHAR(8) NOT NULL,
		estado VARCHAR(16) NOT NULL DEFAULT 'pendiente',
		created_at VARCHAR(32) NOT NULL,
		KEY idx_pre_reservas_estado (estado),
		CONSTRAINT fk_pre_reservas_delegacion FOREIGN KEY (delegacion_id) REFERENCES delegaciones(id),
		CONSTRAINT chk_pre_reservas_cantidad CHECK (cantidad > 0)
	)` + mysqlTable,
	`CREATE TABLE IF NOT EXISTS auditoria (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id CHAR(36) NOT NULL,
		accion VARCHAR(64) NOT NULL,
		entidad VARCHAR(64) NOT NULL,
		entidad_id BIGINT NOT NULL,
		payload_json TEXT NULL,
		created_at VARCHAR(32) NOT NULL,
		UNIQUE KEY uq_auditoria_id (id)
	)` + mysqlTable,
}
