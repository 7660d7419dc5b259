package store

const (
	// MetricErrorsTotal 被归一化为 false 的存储错误数 (Counter)
	MetricErrorsTotal = "store_errors_total"

	LabelOp      = "op"
	LabelBackend = "backend"
)

const (
	opSetIfAbsent      = "set_if_absent"
	opSet              = "set"
	opGet              = "get"
	opDelete           = "delete"
	opCompareAndDelete = "compare_and_delete"
	opServerTime       = "server_time"
)
