// 导出作答记录脚本
//
// 从当前配置的存储中读取最近的作答记录，以 YAML 输出到标准输出，
// 用于排查问题或迁移存储驱动前备份数据。
//
// 用法: go run scripts/export_attempts.go -limit 200

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"quizo/internal/app"
	"quizo/internal/config"
	"quizo/internal/repository"

	"gopkg.in/yaml.v3"
)

type exportedAttempt struct {
	ID             uint      `yaml:"id"`
	SessionID      string    `yaml:"session_id"`
	Question       string    `yaml:"question"`
	SelectedAnswer *string   `yaml:"selected_answer"`
	Correct        bool      `yaml:"correct"`
	CreatedAt      time.Time `yaml:"created_at"`
}

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	limit := flag.Int("limit", repository.MaxRecentLimit, "导出条数")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}

	store, err := app.OpenStore(&cfg.Store)
	if err != nil {
		log.Fatalf("存储连接失败: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	attempts, err := store.Recent(ctx, *limit)
	if err != nil {
		log.Fatalf("读取作答记录失败: %v", err)
	}

	out := make([]exportedAttempt, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, exportedAttempt{
			ID:             a.ID,
			SessionID:      a.SessionID,
			Question:       a.Question,
			SelectedAnswer: a.SelectedAnswer,
			Correct:        a.Correct,
			CreatedAt:      a.CreatedAt,
		})
	}

	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(map[string]interface{}{"attempts": out}); err != nil {
		log.Fatalf("导出失败: %v", err)
	}
	log.Printf("导出 %d 条记录 (driver=%s)", len(out), cfg.Store.Driver)
}
