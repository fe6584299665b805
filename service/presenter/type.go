package presenter

import "github.com/khaledhikmat/vs-traffic/model"

// IService receives everything the frame loop produces. Calls are made from
// the session goroutine and must not block.
type IService interface {
	OnFrame(frame model.RenderedFrame)
	OnStatusText(text string)
	OnCount(count int)
}
