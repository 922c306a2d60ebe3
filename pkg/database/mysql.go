// Package database 负责初始化 MySQL 与 Redis 连接。
package database

import (
	"time"

	"fashion-curation-go/internal/model"
	"fashion-curation-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接并迁移产品相关表结构。
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("连接 MySQL 数据库失败", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("获取底层 sql.DB 失败", err)
	}

	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间

	// 自动迁移源记录表与本地文档表
	if err := DB.AutoMigrate(&model.ProductSource{}, &model.ProductDocumentRow{}); err != nil {
		log.Fatal("迁移产品表结构失败", err)
	}

	log.Info("MySQL 数据库连接成功")
}
