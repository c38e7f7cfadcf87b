// quiz 是终端答题客户端，直接驱动 QuizService，不经过 HTTP
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"quizo/internal/app"
	"quizo/internal/config"
	"quizo/internal/quiz"
	"quizo/internal/service"
	"quizo/pkg/logger"

	"go.uber.org/zap"
)

type client struct {
	svc *service.QuizService
	mu  sync.Mutex
	out io.Writer
}

func newClient(svc *service.QuizService, out io.Writer) *client {
	c := &client{svc: svc, out: out}
	svc.Subscribe(c.onFinished)
	return c
}

// onFinished 倒计时自动切题时重绘；手动切题由 handle 自己输出
func (c *client) onFinished(n service.Notification) {
	if !n.Expired {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, "\nTime's up!")
	c.renderLocked(n.View, n.Completion)
}

func (c *client) render(v service.QuizView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderLocked(v, nil)
}

func (c *client) renderLocked(v service.QuizView, completion *quiz.Completion) {
	if completion != nil {
		fmt.Fprintf(c.out, "\nQuiz Completed! Your score: %d/%d\n", completion.Score, completion.Total)
		if v.AwaitingAck {
			fmt.Fprintln(c.out, "Press Enter to start again.")
			return
		}
	}

	fmt.Fprintf(c.out, "\nQuestion %d/%d  score %d  %ds left\n", v.Index+1, v.Total, v.Score, v.Remaining)
	fmt.Fprintln(c.out, strings.TrimSpace(v.Prompt))
	for _, o := range v.Options {
		marker := " "
		if v.SelectedAnswer != nil && *v.SelectedAnswer == o.Text {
			marker = "*"
		}
		fmt.Fprintf(c.out, " %s %s) %s\n", marker, strings.ToLower(o.Label), strings.TrimSpace(o.Text))
	}
	switch v.Feedback {
	case quiz.FeedbackCorrect:
		fmt.Fprintln(c.out, "Correct!")
	case quiz.FeedbackIncorrect:
		fmt.Fprintln(c.out, "Incorrect.")
	}
	if v.Kind == quiz.KindChoice {
		fmt.Fprintln(c.out, "[a-d] answer  [n] next  [q] quit")
	} else {
		fmt.Fprintln(c.out, "[number] answer  [n] next  [q] quit")
	}
}

func (c *client) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// handle 处理一行输入，返回 false 表示退出
func (c *client) handle(line string) bool {
	cmd := strings.TrimSpace(line)

	if c.svc.View().AwaitingAck {
		if strings.EqualFold(cmd, "q") {
			return false
		}
		c.render(c.svc.Acknowledge())
		return true
	}

	switch strings.ToLower(cmd) {
	case "q":
		return false
	case "":
		c.render(c.svc.View())
		return true
	case "n":
		res, err := c.svc.Advance()
		if err != nil {
			c.printf("%v\n", err)
			return true
		}
		c.mu.Lock()
		c.renderLocked(res.View, res.Completion)
		c.mu.Unlock()
		return true
	}

	var (
		view service.QuizView
		err  error
	)
	if c.svc.View().Kind == quiz.KindChoice {
		view, err = c.svc.SelectLabel(cmd)
	} else {
		view, err = c.svc.SubmitNumeric(cmd)
	}
	if err != nil {
		c.printf("%v\n", err)
		return true
	}
	c.render(view)
	return true
}

func main() {
	configDir := flag.String("config", "configs", "配置文件目录")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	// 终端被答题界面占用，日志只写文件
	cfg.Log.Console = false
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	store, err := app.OpenStore(&cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open attempt store: %v", err)
	}
	defer store.Close()

	svc, err := app.NewQuiz(cfg, store, logger.Log)
	if err != nil {
		log.Fatalf("Failed to create quiz: %v", err)
	}

	c := newClient(svc, os.Stdout)
	svc.Start()
	c.render(svc.View())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if !c.handle(scanner.Text()) {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Store.WriteTimeout+time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		logger.Log.Warn("Pending attempt writes abandoned", zap.Error(err))
	}
}
