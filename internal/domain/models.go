package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProcessingConfig selects the code path for one upload. It is part of the
// content key, so its JSON encoding must stay stable.
type ProcessingConfig struct {
	ParserType      ParserVariant  `json:"parser_type"`
	EntityExtractor ExtractorModel `json:"entity_extractor"`
}

// NewProcessingConfig applies defaults for empty values and validates the result.
func NewProcessingConfig(parser, model string) (ProcessingConfig, error) {
	cfg := ProcessingConfig{
		ParserType:      ParserVariant(parser),
		EntityExtractor: ExtractorModel(model),
	}
	if cfg.ParserType == "" {
		cfg.ParserType = DefaultParserVariant
	}
	if cfg.EntityExtractor == "" {
		cfg.EntityExtractor = DefaultExtractorModel
	}
	if err := cfg.Validate(); err != nil {
		return ProcessingConfig{}, err
	}
	return cfg, nil
}

// Validate rejects parser variants and models outside the supported sets.
func (c ProcessingConfig) Validate() error {
	if !AllowedParserVariants[c.ParserType] {
		return fmt.Errorf("%w: unknown parser_type %q", ErrInvalidConfig, c.ParserType)
	}
	if _, ok := SupportedModels[c.EntityExtractor]; !ok {
		return fmt.Errorf("%w: unknown entity_extractor %q", ErrInvalidConfig, c.EntityExtractor)
	}
	return nil
}

// Canonical returns the serialized form used for key derivation.
func (c ProcessingConfig) Canonical() []byte {
	// Struct field order is fixed, so the encoding is deterministic.
	b, _ := json.Marshal(c)
	return b
}

// ContactInfo describes a shipper or consignee.
type ContactInfo struct {
	Name       string `json:"name" description:"Name of the contact person or company" validate:"required"`
	Address    string `json:"address" description:"Street address of the contact" validate:"required"`
	City       string `json:"city" description:"City of the contact" validate:"required"`
	State      string `json:"state,omitempty" description:"State or province of the contact"`
	PostalCode string `json:"postal_code,omitempty" description:"Postal or ZIP code of the contact"`
	Country    string `json:"country,omitempty" description:"Country of the contact"`
	Phone      string `json:"phone,omitempty" description:"Phone number of the contact"`
	Email      string `json:"email,omitempty" description:"Email address of the contact"`
	TaxID      string `json:"tax_id,omitempty" description:"Tax identification number of the contact"`
}

// PackageDetails describes one package line on the bill of lading.
type PackageDetails struct {
	Description     string `json:"description" description:"Description of the package contents" validate:"required"`
	Quantity        int    `json:"quantity" description:"Number of items in the package" validate:"gte=0"`
	GrossWeight     string `json:"gross_weight" description:"Gross weight of the package including units" validate:"required"`
	SealNumber      string `json:"seal_number,omitempty" description:"Seal number of the package"`
	ContainerNumber string `json:"container_number,omitempty" description:"Container number housing the package"`
}

// BillOfLading is the canonical extraction target. The model-facing JSON
// Schema and the stored record shape are both derived from it.
type BillOfLading struct {
	Shipper         ContactInfo      `json:"shipper" description:"Shipper responsible for sending the goods" validate:"required"`
	Consignee       ContactInfo      `json:"consignee" description:"Consignee receiving the goods" validate:"required"`
	Vessel          string           `json:"vessel" description:"Name of the vessel carrying the goods" validate:"required"`
	VoyageNumber    string           `json:"voyage_number" description:"Voyage number assigned to the shipment" validate:"required"`
	PortOfLoading   string           `json:"port_of_loading" description:"Port where the goods are loaded onto the vessel" validate:"required"`
	PortOfDischarge string           `json:"port_of_discharge" description:"Port where the goods will be unloaded from the vessel" validate:"required"`
	PlaceOfDelivery string           `json:"place_of_delivery" description:"Final delivery location for the goods" validate:"required"`
	Packages        []PackageDetails `json:"packages" description:"Details of the packages, including quantity and description" validate:"required,min=1,dive"`
	IssueDate       string           `json:"issue_date" description:"Date the Bill of Lading was issued" validate:"required"`
	BLNumber        string           `json:"bl_number" description:"Unique Bill of Lading number" validate:"required"`
}

// MetaInfo records how a ShippingRecord was produced.
type MetaInfo struct {
	DocumentName         string         `json:"document_name"`
	DocParserModel       ParserVariant  `json:"doc_parser_model"`
	EntityExtractorModel ExtractorModel `json:"entity_extractor_model"`
	TotalCost            float64        `json:"total_cost"`
	TotalTokens          int            `json:"total_tokens"`
}

// ShippingRecord is the persisted extraction result for one content key.
type ShippingRecord struct {
	TaskID string `json:"task_id"`
	BillOfLading
	ParsedContent string    `json:"parsed_content"`
	MetaInfo      MetaInfo  `json:"meta_info"`
	CreatedAt     time.Time `json:"created_at"`
	// SourceURL is a presigned link to the archived upload. It is not persisted.
	SourceURL string `json:"source_url,omitempty"`
}

// ExtractionUsage is the resource usage of a single extraction call.
type ExtractionUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}
