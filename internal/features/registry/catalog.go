package registry

// CatalogVersion identifies the shape of the built-in catalog. Bump it when a
// source, field or relation changes so stored definitions can be re-checked.
const CatalogVersion = "2026.10.1"

func tenantField() FieldDescriptor {
	return FieldDescriptor{Name: "organization_id", Column: "organization_id", Type: FieldTypeNumber, Label: "Organization"}
}

func idField() FieldDescriptor {
	return FieldDescriptor{Name: "id", Column: "id", Type: FieldTypeNumber, Label: "ID", Aggregatable: true}
}

// DefaultCatalog returns the sources backing the construction CRM domains.
func DefaultCatalog() []SourceDescriptor {
	return []SourceDescriptor{
		{
			Name:  "organizations",
			Label: "Organizations",
			Table: "organizations",
			Fields: []FieldDescriptor{
				idField(),
				{Name: "name", Column: "name", Type: FieldTypeString, Label: "Name"},
				{Name: "tax_number", Column: "tax_number", Type: FieldTypeString, Label: "Tax number"},
				{Name: "created_at", Column: "created_at", Type: FieldTypeDate, Label: "Created"},
			},
			TenantColumn: "id",
			NaturalKey:   "id",
		},
		{
			Name:  "projects",
			Label: "Projects",
			Table: "projects",
			Fields: []FieldDescriptor{
				idField(),
				tenantField(),
				{Name: "name", Column: "name", Type: FieldTypeString, Label: "Name"},
				{Name: "status", Column: "status", Type: FieldTypeEnum, Label: "Status", EnumValues: []string{"planned", "active", "completed", "archived"}},
				{Name: "budget", Column: "budget", Type: FieldTypeNumber, Label: "Budget", Aggregatable: true},
				{Name: "start_date", Column: "start_date", Type: FieldTypeDate, Label: "Start date", Aggregatable: true},
				{Name: "end_date", Column: "end_date", Type: FieldTypeDate, Label: "End date", Aggregatable: true},
			},
			Relations: []RelationDescriptor{
				{FromSource: "projects", ToSource: "organizations", JoinKeyFrom: "organization_id", JoinKeyTo: "id", Cardinality: OneToOne},
				{FromSource: "projects", ToSource: "completed_works", JoinKeyFrom: "id", JoinKeyTo: "project_id", Cardinality: OneToMany},
				{FromSource: "projects", ToSource: "contracts", JoinKeyFrom: "id", JoinKeyTo: "project_id", Cardinality: OneToMany},
				{FromSource: "projects", ToSource: "estimates", JoinKeyFrom: "id", JoinKeyTo: "project_id", Cardinality: OneToMany},
			},
			TenantColumn: "organization_id",
			NaturalKey:   "id",
		},
		{
			Name:  "completed_works",
			Label: "Completed works",
			Table: "completed_works",
			Fields: []FieldDescriptor{
				idField(),
				tenantField(),
				{Name: "project_id", Column: "project_id", Type: FieldTypeNumber, Label: "Project"},
				{Name: "contract_id", Column: "contract_id", Type: FieldTypeNumber, Label: "Contract"},
				{Name: "description", Column: "description", Type: FieldTypeString, Label: "Description"},
				{Name: "status", Column: "status", Type: FieldTypeEnum, Label: "Status", EnumValues: []string{"draft", "submitted", "confirmed", "rejected"}},
				{Name: "quantity", Column: "quantity", Type: FieldTypeNumber, Label: "Quantity", Aggregatable: true},
				{Name: "unit_price", Column: "unit_price", Type: FieldTypeNumber, Label: "Unit price", Aggregatable: true},
				{Name: "total_amount", Column: "total_amount", Type: FieldTypeNumber, Label: "Total amount", Aggregatable: true},
				{Name: "completed_on", Column: "completed_on", Type: FieldTypeDate, Label: "Completed on", Aggregatable: true},
			},
			Relations: []RelationDescriptor{
				{FromSource: "completed_works", ToSource: "projects", JoinKeyFrom: "project_id", JoinKeyTo: "id", Cardinality: OneToOne},
				{FromSource: "completed_works", ToSource: "contracts", JoinKeyFrom: "contract_id", JoinKeyTo: "id", Cardinality: OneToOne},
			},
			TenantColumn: "organization_id",
			NaturalKey:   "id",
		},
		{
			Name:  "contracts",
			Label: "Contracts",
			Table: "contracts",
			Fields: []FieldDescriptor{
				idField(),
				tenantField(),
				{Name: "project_id", Column: "project_id", Type: FieldTypeNumber, Label: "Project"},
				{Name: "number", Column: "contract_number", Type: FieldTypeString, Label: "Number"},
				{Name: "counterparty", Column: "counterparty", Type: FieldTypeString, Label: "Counterparty"},
				{Name: "status", Column: "status", Type: FieldTypeEnum, Label: "Status", EnumValues: []string{"draft", "signed", "closed", "terminated"}},
				{Name: "amount", Column: "amount", Type: FieldTypeNumber, Label: "Amount", Aggregatable: true},
				{Name: "is_active", Column: "is_active", Type: FieldTypeBoolean, Label: "Active"},
				{Name: "signed_on", Column: "signed_on", Type: FieldTypeDate, Label: "Signed on", Aggregatable: true},
			},
			Relations: []RelationDescriptor{
				{FromSource: "contracts", ToSource: "projects", JoinKeyFrom: "project_id", JoinKeyTo: "id", Cardinality: OneToOne},
				{FromSource: "contracts", ToSource: "completed_works", JoinKeyFrom: "id", JoinKeyTo: "contract_id", Cardinality: OneToMany},
			},
			TenantColumn: "organization_id",
			NaturalKey:   "id",
		},
		{
			Name:  "estimates",
			Label: "Estimates",
			Table: "estimates",
			Fields: []FieldDescriptor{
				idField(),
				tenantField(),
				{Name: "project_id", Column: "project_id", Type: FieldTypeNumber, Label: "Project"},
				{Name: "title", Column: "title", Type: FieldTypeString, Label: "Title"},
				{Name: "total_amount", Column: "total_amount", Type: FieldTypeNumber, Label: "Total amount", Aggregatable: true},
				{Name: "approved", Column: "approved", Type: FieldTypeBoolean, Label: "Approved"},
				{Name: "created_on", Column: "created_on", Type: FieldTypeDate, Label: "Created on", Aggregatable: true},
			},
			Relations: []RelationDescriptor{
				{FromSource: "estimates", ToSource: "projects", JoinKeyFrom: "project_id", JoinKeyTo: "id", Cardinality: OneToOne},
				{FromSource: "estimates", ToSource: "materials", JoinKeyFrom: "id", JoinKeyTo: "estimate_id", Cardinality: OneToMany},
			},
			TenantColumn: "organization_id",
			NaturalKey:   "id",
		},
		{
			Name:  "materials",
			Label: "Materials",
			Table: "materials",
			Fields: []FieldDescriptor{
				idField(),
				tenantField(),
				{Name: "estimate_id", Column: "estimate_id", Type: FieldTypeNumber, Label: "Estimate"},
				{Name: "name", Column: "name", Type: FieldTypeString, Label: "Name"},
				{Name: "unit", Column: "unit", Type: FieldTypeEnum, Label: "Unit", EnumValues: []string{"pcs", "m", "m2", "m3", "kg", "t"}},
				{Name: "quantity", Column: "quantity", Type: FieldTypeNumber, Label: "Quantity", Aggregatable: true},
				{Name: "unit_cost", Column: "unit_cost", Type: FieldTypeNumber, Label: "Unit cost", Aggregatable: true},
				{Name: "total_cost", Column: "total_cost", Type: FieldTypeNumber, Label: "Total cost", Aggregatable: true},
			},
			Relations: []RelationDescriptor{
				{FromSource: "materials", ToSource: "estimates", JoinKeyFrom: "estimate_id", JoinKeyTo: "id", Cardinality: OneToOne},
			},
			TenantColumn: "organization_id",
			NaturalKey:   "id",
		},
	}
}

// NewDefaultRegistry builds the registry from the built-in catalog.
func NewDefaultRegistry() (Registry, error) {
	r, err := NewStaticRegistry(CatalogVersion, DefaultCatalog())
	if err != nil {
		return nil, err
	}
	return r, nil
}
