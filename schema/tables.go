package schema

import "strings"

// Common columns appended to every warehouse row.
const (
	ProcessingDateColumn   = "processing_date"
	ClosureIndicatorColumn = "closure_indicator"
	ClosureReasonColumn    = "closure_reason"
)

// ClosureKey is the identifier written into key columns of placeholder rows.
const ClosureKey = "CLOSURE_RECORD"

// ColumnKind tells the calendar how to fill a template column.
type ColumnKind int

// Template column kinds.
const (
	ConstColumn ColumnKind = iota // Value is copied as-is
	NoteColumn                    // "Business Closed - <reason label>"
	DateColumn                    // The processing date as YYYY-MM-DD
)

// TemplateColumn is one business field of a placeholder row.
type TemplateColumn struct {
	Name  string
	Kind  ColumnKind
	Value any
}

// TableSpec describes one warehouse target table.
type TableSpec struct {
	Name     string
	FileKey  string // Lowercase substring identifying the export file
	Template []TemplateColumn
}

// Tables is the registry of the seven daily export tables.
var Tables = []TableSpec{
	{
		Name:    "all_items_report",
		FileKey: "allitemsreport",
		Template: []TemplateColumn{
			{Name: "master_id", Value: ClosureKey},
			{Name: "item_id", Value: "CLOSURE"},
			{Name: "menu_item", Kind: NoteColumn},
			{Name: "item_qty", Value: 0},
			{Name: "net_amount", Value: 0.0},
		},
	},
	{
		Name:    "check_details",
		FileKey: "checkdetails",
		Template: []TemplateColumn{
			{Name: "check_id", Value: ClosureKey},
			{Name: "customer", Value: "Business Closed"},
			{Name: "total", Value: 0.0},
			{Name: "opened_date", Kind: DateColumn},
		},
	},
	{
		Name:    "cash_entries",
		FileKey: "cashentries",
		Template: []TemplateColumn{
			{Name: "entry_id", Value: ClosureKey},
			{Name: "action", Value: "Business Closed"},
			{Name: "amount", Value: 0.0},
			{Name: "created_date", Kind: DateColumn},
		},
	},
	{
		Name:    "item_selection_details",
		FileKey: "itemselectiondetails",
		Template: []TemplateColumn{
			{Name: "order_id", Value: ClosureKey},
			{Name: "item_selection_id", Value: "CLOSURE"},
			{Name: "menu_item", Kind: NoteColumn},
			{Name: "quantity", Value: 0},
			{Name: "net_price", Value: 0.0},
		},
	},
	{
		Name:    "kitchen_timings",
		FileKey: "kitchentimings",
		Template: []TemplateColumn{
			{Name: "id", Value: ClosureKey},
			{Name: "check_number", Value: "CLOSURE"},
			{Name: "station", Value: "Business Closed"},
			{Name: "fulfillment_time", Value: 0},
		},
	},
	{
		Name:    "order_details",
		FileKey: "orderdetails",
		Template: []TemplateColumn{
			{Name: "order_id", Value: ClosureKey},
			{Name: "location", Value: "Business Closed"},
			{Name: "total", Value: 0.0},
			{Name: "opened", Kind: DateColumn},
		},
	},
	{
		Name:    "payment_details",
		FileKey: "paymentdetails",
		Template: []TemplateColumn{
			{Name: "payment_id", Value: ClosureKey},
			{Name: "order_id", Value: ClosureKey},
			{Name: "amount", Value: 0.0},
		},
	},
}

// TableNames returns the registered table names in registry order.
func TableNames() []string {
	names := make([]string, 0, len(Tables))
	for _, t := range Tables {
		names = append(names, t.Name)
	}
	return names
}

// TableForFile maps an export file name to its warehouse table.
// Unknown files fall back to a snake_case form of the file name.
func TableForFile(filename string) string {
	lower := strings.ToLower(filename)
	for _, t := range Tables {
		if strings.Contains(lower, t.FileKey) {
			return t.Name
		}
	}
	lower = strings.TrimSuffix(lower, ".csv")
	return strings.NewReplacer("-", "_", " ", "_").Replace(lower)
}
