package extraction

import "repairscribe/internal/models"

// Category groups related fields of the comprehensive repair schema.
type Category struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Categories is the comprehensive field catalogue requested for every
// non-custom extraction type.
var Categories = []Category{
	{Name: "customer_information", Fields: []string{
		"customer_name", "customer_phone", "customer_email", "customer_address",
		"preferred_contact_method", "insurance_company", "claim_number",
	}},
	{Name: "vehicle_information", Fields: []string{
		"vehicle_year", "vehicle_make", "vehicle_model", "vehicle_trim", "vin",
		"license_plate", "mileage", "vehicle_color", "engine_type",
	}},
	{Name: "damage_assessment", Fields: []string{
		"damage_description", "damage_location", "damage_severity", "damage_cause",
		"affected_systems", "safety_concerns", "pre_existing_damage", "photos_taken",
	}},
	{Name: "repair_work", Fields: []string{
		"repair_description", "repair_procedures", "labor_hours", "labor_rate",
		"technician_name", "diagnostic_codes", "estimated_completion",
		"repair_priority", "warranty_work",
	}},
	{Name: "parts_operations", Fields: []string{
		"parts_needed", "part_numbers", "parts_quantity", "parts_cost",
		"parts_supplier", "oem_or_aftermarket", "parts_availability", "parts_ordered",
	}},
	{Name: "recommendations", Fields: []string{
		"recommended_services", "follow_up_required", "follow_up_date",
		"maintenance_notes", "estimated_total_cost", "additional_notes",
	}},
}

var catalogueFields = func() []string {
	var out []string
	for _, c := range Categories {
		out = append(out, c.Fields...)
	}
	return out
}()

// FieldNames returns every catalogue field in category order.
func FieldNames() []string {
	out := make([]string, len(catalogueFields))
	copy(out, catalogueFields)
	return out
}

// TypeInfo describes one extraction type for clients and the prompt.
type TypeInfo struct {
	Type        models.ExtractionType `json:"type"`
	Description string                `json:"description"`
	focus       string
}

var typeInfo = map[models.ExtractionType]TypeInfo{
	models.ExtractionRepairDetails: {
		Description: "Complete repair order details: vehicle, customer, damage, work performed and recommendations",
		focus:       "Pay particular attention to the work performed, the procedures followed and the vehicle being repaired.",
	},
	models.ExtractionPartsInventory: {
		Description: "Parts required or used, with part numbers, quantities, costs and availability",
		focus:       "Pay particular attention to every part mentioned, its part number, quantity, cost, supplier and whether it is OEM or aftermarket.",
	},
	models.ExtractionLaborHours: {
		Description: "Labor time, rates, technicians and diagnostic work",
		focus:       "Pay particular attention to labor hours, labor rates, the technician and any diagnostic codes.",
	},
	models.ExtractionCustomerInfo: {
		Description: "Customer contact, insurance and claim information",
		focus:       "Pay particular attention to the customer's name, contact details, insurance company and claim number.",
	},
	models.ExtractionDamageAssessment: {
		Description: "Damage description, location, severity, cause and safety concerns",
		focus:       "Pay particular attention to where the vehicle is damaged, how severe it is, what caused it and any safety concerns.",
	},
	models.ExtractionCustom: {
		Description: "Caller-defined fields described by a custom schema",
	},
}

// Types lists every extraction type with its description.
func Types() []TypeInfo {
	out := make([]TypeInfo, 0, len(models.ExtractionTypes))
	for _, t := range models.ExtractionTypes {
		info := typeInfo[t]
		info.Type = t
		out = append(out, info)
	}
	return out
}
