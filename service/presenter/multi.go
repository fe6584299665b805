package presenter

import "github.com/khaledhikmat/vs-traffic/model"

type multiService struct {
	sinks []IService
}

// NewMulti fans every call out to the given sinks in order. Nil sinks are
// skipped.
func NewMulti(sinks ...IService) IService {
	svc := &multiService{}
	for _, s := range sinks {
		if s != nil {
			svc.sinks = append(svc.sinks, s)
		}
	}
	return svc
}

func (svc *multiService) OnFrame(frame model.RenderedFrame) {
	for _, s := range svc.sinks {
		s.OnFrame(frame)
	}
}

func (svc *multiService) OnStatusText(text string) {
	for _, s := range svc.sinks {
		s.OnStatusText(text)
	}
}

func (svc *multiService) OnCount(count int) {
	for _, s := range svc.sinks {
		s.OnCount(count)
	}
}
