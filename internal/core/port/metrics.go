package port

type RelayMetrics interface {
	Delivered()
	Queued()
	Dropped(reason string)
	DeliveryFailed()
	RoomOpened()
	RoomClosed()
}

type NopMetrics struct{}

func (NopMetrics) Delivered()      {}
func (NopMetrics) Queued()         {}
func (NopMetrics) Dropped(string)  {}
func (NopMetrics) DeliveryFailed() {}
func (NopMetrics) RoomOpened()     {}
func (NopMetrics) RoomClosed()     {}
