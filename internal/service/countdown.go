package service

import "time"

// Ticker 抽象 time.Ticker，便于测试中手动驱动倒计时
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct {
	t *time.Ticker
}

func newRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop() { r.t.Stop() }

// countdown 每道题一个计时句柄；题目切换或服务停止时取消
type countdown struct {
	generation uint64
	ticker     Ticker
	stop       chan struct{}
}

func (c *countdown) cancel() {
	close(c.stop)
	c.ticker.Stop()
}

// runCountdown 把 ticker 的触发转成 onTick 调用，句柄取消后退出
func (s *QuizService) runCountdown(c *countdown) {
	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C():
			s.onTick(c.generation)
		}
	}
}

func (s *QuizService) startCountdownLocked() {
	s.cancelCountdownLocked()

	s.generation++
	c := &countdown{
		generation: s.generation,
		ticker:     s.newTicker(s.opts.TickInterval),
		stop:       make(chan struct{}),
	}
	s.countdown = c
	go s.runCountdown(c)
}

func (s *QuizService) cancelCountdownLocked() {
	if s.countdown == nil {
		return
	}
	s.countdown.cancel()
	s.countdown = nil
}
