package store

import (
	"gorm.io/gorm"
)

type IRepo interface {
	Order() IOrder
	Trade() ITrade
	Balance() IBalance
}

type Repo struct {
	coreDB *gorm.DB
}

func NewRepo(coreDB *gorm.DB) IRepo {
	return &Repo{
		coreDB: coreDB,
	}
}

func (r *Repo) Order() IOrder {
	return NewOrderSQLRepo(r.coreDB)
}

func (r *Repo) Trade() ITrade {
	return NewTradeSQLRepo(r.coreDB)
}

func (r *Repo) Balance() IBalance {
	return NewBalanceSQLRepo(r.coreDB)
}
