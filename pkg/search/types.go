package search

import "time"

// Doc 一条录音在索引中的表示，ID 为录音行主键的十进制串
type Doc struct {
	ID     string
	Name   string
	Length time.Duration
	Added  time.Time
}

// Hit 搜索命中
type Hit struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Result 搜索结果
type Result struct {
	Total uint64        `json:"total"`
	Took  time.Duration `json:"took"`
	Hits  []Hit         `json:"hits"`
}

// Config 索引配置
type Config struct {
	// IndexPath 为空时使用内存索引
	IndexPath    string
	QueryTimeout time.Duration
	BatchSize    int
	// DefaultLimit 未指定条数时返回的最大命中数
	DefaultLimit int
}
