package database

import "gorm.io/gorm"

var DB *gorm.DB

// GetDB returns the shared database handle, or nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return DB
}
