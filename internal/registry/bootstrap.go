// Copyright 2026 The PlantOps Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package registry

import "context"

// Bootstrap registers the built-in policies for the platform's business
// modules. Collaborating services may re-register with updated policies at
// runtime; these are the deployment defaults.
func Bootstrap(ctx context.Context, r *Registry) error {
	for _, policy := range defaultPolicies() {
		if err := r.Register(ctx, policy); err != nil {
			return err
		}
	}
	return nil
}

func defaultPolicies() []*ModulePolicy {
	return []*ModulePolicy{
		{
			Module: "quality",
			Roles:  []string{"VIEWER", "INSPECTOR", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":    {"quality.view", "reports.view"},
				"INSPECTOR": {"quality.view", "quality.inspect", "defects.create"},
				"MANAGER":   {"quality.view", "quality.inspect", "quality.manage", "reports.create"},
				"ADMIN":     {"quality.*", "reports.*", "settings.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"site", "department"},
				Optional: []string{"shift", "line"},
			},
			PIIFields:          []string{"inspector_name", "employee_id"},
			DataClassification: ClassificationInternal,
			EncryptionRequired: true,
		},
		{
			Module: "maintenance",
			Roles:  []string{"VIEWER", "TECHNICIAN", "SUPERVISOR", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":     {"maintenance.view", "schedules.view"},
				"TECHNICIAN": {"maintenance.view", "workorders.edit", "equipment.inspect"},
				"SUPERVISOR": {"maintenance.*", "schedules.manage", "reports.create"},
				"ADMIN":      {"maintenance.*", "equipment.*", "settings.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"site", "equipment_type"},
				Optional: []string{"shift", "certification_level"},
			},
			PIIFields:          []string{"technician_name", "employee_id"},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "safety",
			Roles:  []string{"VIEWER", "OFFICER", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":  {"safety.view", "incidents.view"},
				"OFFICER": {"safety.*", "incidents.create", "hazards.assess"},
				"MANAGER": {"safety.*", "compliance.manage", "training.approve"},
				"ADMIN":   {"safety.*", "compliance.*", "settings.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"site", "safety_zone"},
				Optional: []string{"clearance_level"},
			},
			PIIFields:          []string{"officer_name", "incident_witnesses"},
			DataClassification: ClassificationConfidential,
		},
		{
			Module: "operations",
			Roles:  []string{"VIEWER", "OPERATOR", "SUPERVISOR", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":     {"operations.view", "metrics.view"},
				"OPERATOR":   {"operations.view", "production.control", "data.entry"},
				"SUPERVISOR": {"operations.*", "schedules.manage", "performance.analyze"},
				"ADMIN":      {"operations.*", "settings.*", "integration.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"site", "production_line"},
				Optional: []string{"shift", "certification"},
			},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "finance",
			Roles:  []string{"VIEWER", "ANALYST", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":  {"finance.view", "reports.view"},
				"ANALYST": {"finance.view", "budgets.edit", "analysis.create"},
				"MANAGER": {"finance.*", "approvals.manage", "forecasts.create"},
				"ADMIN":   {"finance.*", "settings.*", "audit.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"cost_center", "region"},
				Optional: []string{"approval_limit"},
			},
			PIIFields:          []string{"employee_id", "vendor_info"},
			DataClassification: ClassificationConfidential,
			EncryptionRequired: true,
		},
		{
			Module: "marketing",
			Roles:  []string{"VIEWER", "COORDINATOR", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":      {"campaigns.view", "analytics.view"},
				"COORDINATOR": {"campaigns.edit", "content.create", "leads.manage"},
				"MANAGER":     {"campaigns.*", "budgets.manage", "strategy.plan"},
				"ADMIN":       {"marketing.*", "integrations.*", "settings.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"department", "region"},
				Optional: []string{"campaign_access", "budget_level"},
			},
			PIIFields:          []string{"customer_data", "lead_info"},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "sales",
			Roles:  []string{"VIEWER", "REP", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":  {"leads.view", "reports.view"},
				"REP":     {"leads.*", "opportunities.*", "activities.*"},
				"MANAGER": {"sales.*", "territories.manage", "forecasts.create"},
				"ADMIN":   {"sales.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"territory", "region"},
				Optional: []string{"deal_limit", "discount_level"},
			},
			PIIFields:          []string{"customer_data", "contact_info"},
			DataClassification: ClassificationConfidential,
		},
		{
			Module: "hr",
			Roles:  []string{"VIEWER", "COORDINATOR", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":      {"employees.view", "org_chart.view"},
				"COORDINATOR": {"employees.edit", "recruitment.manage", "training.coordinate"},
				"MANAGER":     {"hr.*", "performance.manage", "compensation.view"},
				"ADMIN":       {"hr.*", "payroll.*", "settings.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"department", "clearance_level"},
				Optional: []string{"salary_access", "review_access"},
			},
			PIIFields:          []string{"employee_data", "ssn", "salary_info"},
			DataClassification: ClassificationConfidential,
			EncryptionRequired: true,
		},
		{
			Module: "legal",
			Roles:  []string{"VIEWER", "PARALEGAL", "ATTORNEY", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":    {"documents.view", "matters.view"},
				"PARALEGAL": {"documents.edit", "research.conduct", "billing.track"},
				"ATTORNEY":  {"legal.*", "matters.manage", "contracts.approve"},
				"ADMIN":     {"legal.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"practice_area", "clearance_level"},
				Optional: []string{"client_access", "matter_type"},
			},
			PIIFields:          []string{"client_data", "case_info"},
			DataClassification: ClassificationConfidential,
			EncryptionRequired: true,
		},
		{
			Module: "customer_success",
			Roles:  []string{"VIEWER", "CSM", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":  {"customers.view", "health.view"},
				"CSM":     {"customers.*", "support.*", "training.deliver"},
				"MANAGER": {"success.*", "programs.manage", "analytics.view"},
				"ADMIN":   {"success.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"region", "customer_tier"},
				Optional: []string{"support_level"},
			},
			PIIFields:          []string{"customer_data", "usage_data"},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "product",
			Roles:  []string{"VIEWER", "ANALYST", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":  {"roadmap.view", "metrics.view"},
				"ANALYST": {"research.conduct", "analysis.create", "feedback.analyze"},
				"MANAGER": {"product.*", "roadmap.manage", "strategy.plan"},
				"ADMIN":   {"product.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"product_line", "region"},
				Optional: []string{"feature_access"},
			},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "chatterfix",
			Roles:  []string{"VIEWER", "TECHNICIAN", "SUPERVISOR", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"VIEWER":     {"workorders.view", "assets.view"},
				"TECHNICIAN": {"workorders.*", "maintenance.execute", "mobile.*"},
				"SUPERVISOR": {"scheduling.*", "assignments.manage", "reports.view"},
				"MANAGER":    {"maintenance.*", "analytics.view", "budgets.manage"},
				"ADMIN":      {"chatterfix.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"site", "equipment_type"},
				Optional: []string{"shift", "certification_level", "mobile_device"},
			},
			PIIFields:          []string{"technician_name", "employee_id", "voice_recordings"},
			DataClassification: ClassificationInternal,
		},
		{
			Module: "linesmart",
			Roles:  []string{"LEARNER", "INSTRUCTOR", "COORDINATOR", "MANAGER", "ADMIN"},
			Permissions: map[string][]string{
				"LEARNER":     {"courses.view", "training.take", "progress.view"},
				"INSTRUCTOR":  {"content.create", "assessments.grade", "analytics.view"},
				"COORDINATOR": {"training.manage", "employees.assign", "reports.create"},
				"MANAGER":     {"programs.manage", "analytics.*", "compliance.monitor"},
				"ADMIN":       {"linesmart.*", "settings.*", "integrations.*"},
			},
			ABAC: ABACRequirements{
				Required: []string{"department", "training_level"},
				Optional: []string{"language_preference", "certification_type"},
			},
			PIIFields:          []string{"employee_data", "training_records", "assessment_results"},
			DataClassification: ClassificationInternal,
		},
	}
}
