package model

// AllModels 开发环境 AutoMigrate 和测试用的模型列表，生产环境以 migrations/ 为准
func AllModels() []interface{} {
	return []interface{}{
		&MainWallet{},
		&BlockCheckpoint{},
		&DepositIntent{},
		&DepositTransaction{},
		&UserBalance{},
		&TransactionLog{},
		&OutboxMessage{},
	}
}
