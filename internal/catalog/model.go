package catalog

type Product struct {
	ID    uint
	Name  string
	Price int64
	Stock int
}
