package domain

type Pagination struct {
	Page     int
	PageSize int
	Status   PaymentStatus
	Method   PaymentMethod
}

func (f Pagination) Limit() int {
	return f.PageSize
}

func (f Pagination) Offset() int {
	return (f.Page - 1) * f.PageSize
}
