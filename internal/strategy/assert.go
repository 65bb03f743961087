package strategy

var (
	_ Quoter = (*Baseline)(nil)
	_ Quoter = (*InventoryAdjusted)(nil)
	_ Quoter = (*AvellanedaStoikov)(nil)
)
