package postgres

import "csvload/internal/storage"

func init() {
	storage.Register("postgres", New)
}
