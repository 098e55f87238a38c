package inventory

import (
	"strings"

	"github.com/ukydev/fleet-maintenance/internal/models"
)

// catalogLimit caps how many catalog rows the parts picker shows.
const catalogLimit = 8

// SearchCatalog filters the catalog by name or code and caps the result.
func SearchCatalog(catalog []models.Part, query string) []models.Part {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.Part, 0, catalogLimit)
	for _, p := range catalog {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Code), q) {
			continue
		}
		out = append(out, p)
		if len(out) == catalogLimit {
			break
		}
	}
	return out
}

// AddUsed adds one unit of a catalog part to the parts-used list. Out of stock
// parts are ignored and the quantity never exceeds the part's stock.
func AddUsed(used []models.PartUsed, part models.Part) []models.PartUsed {
	if part.Stock <= 0 {
		return used
	}
	out := append([]models.PartUsed(nil), used...)
	for i := range out {
		if out[i].PartID == part.ID {
			if out[i].Qty+1 <= part.Stock {
				out[i].Qty++
			} else {
				out[i].Qty = part.Stock
			}
			return out
		}
	}
	return append(out, models.PartUsed{PartID: part.ID, Name: part.Name, Code: part.Code, Qty: 1})
}

// DecrementUsed lowers a part's quantity, dropping it when it would reach zero.
func DecrementUsed(used []models.PartUsed, partID string) []models.PartUsed {
	out := make([]models.PartUsed, 0, len(used))
	for _, u := range used {
		if u.PartID == partID {
			if u.Qty <= 1 {
				continue
			}
			u.Qty--
		}
		out = append(out, u)
	}
	return out
}

// RemoveUsed drops a part from the list.
func RemoveUsed(used []models.PartUsed, partID string) []models.PartUsed {
	out := make([]models.PartUsed, 0, len(used))
	for _, u := range used {
		if u.PartID != partID {
			out = append(out, u)
		}
	}
	return out
}

// ExceedsStock lists parts-used entries whose quantity is above current stock.
func ExceedsStock(used []models.PartUsed, catalog []models.Part) []models.PartUsed {
	var over []models.PartUsed
	for _, u := range used {
		p, ok := Find(catalog, u.PartID)
		if ok && u.Qty > p.Stock {
			over = append(over, u)
		}
	}
	return over
}
