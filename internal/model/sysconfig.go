package model

import "time"

// SystemConfigClassificationEnabled は分類システムの有効・無効を制御するキー。
const SystemConfigClassificationEnabled = "classificationEnabled"

// SystemConfig はシステム全体のトグル設定を表す。
type SystemConfig struct {
	Key         string    `bson:"_id" json:"key"`
	Value       bool      `bson:"value" json:"value"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}
