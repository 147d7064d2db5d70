package model

import (
	stderrors "errors"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gormscope/gormscope/pkg/errors"
)

// FindOneOr404 returns the first row of T matching query, or a not-found
// AppError when there is none. query and args follow gorm's Where.
func FindOneOr404[T any](db *gorm.DB, query any, args ...any) (*T, error) {
	var out T
	err := db.Where(query, args...).Take(&out).Error
	return lookupResult(&out, err)
}

// GetOr404 returns the row of T with primary key pk, or a not-found AppError.
func GetOr404[T any](db *gorm.DB, pk any) (*T, error) {
	var out T
	err := db.Where(clause.Eq{Column: clause.PrimaryColumn, Value: pk}).Take(&out).Error
	return lookupResult(&out, err)
}

func lookupResult[T any](out *T, err error) (*T, error) {
	if err == nil {
		return out, nil
	}
	name := resourceName[T]()
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound(name)
	}
	return nil, errors.Wrap(errors.ErrCodeDBQuery, "failed to look up "+name, err)
}

func resourceName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "record"
	}
	return strings.ToLower(t.Name())
}
