// Package ingest loads production batches from YAML documents.
//
// A batch document lists any of materials, equipment, orders and plans:
//
//	materials:
//	  - id: steel-sheet-2mm
//	    unit: m2
//	    on_hand: 120
//	equipment:
//	  - id: laser-1
//	    type: laser
//	orders:
//	  - id: ord-1001
//	    customer_ref: ACME-77
//	    priority: 1
//	    due_date: 2025-03-10T17:00:00Z
//	plans:
//	  - id: plan-1001
//	    order_id: ord-1001
//	    stages:
//	      - id: ord-1001-cut
//	        equipment_type: laser
//	        duration: 90m
//	        requirements:
//	          - material_id: steel-sheet-2mm
//	            quantity: 2.25
//	      - id: ord-1001-bend
//	        equipment_type: press
//	        duration: 1h
//
// Stage order within a plan is precedence order. A stage marked
// parallel: true may run alongside the stage before it.
//
// Documents are checked with go-playground/validator before they reach the
// engine, so malformed input is reported with file and field paths. The
// engine still enforces everything that depends on existing state, such as
// plans referencing orders that are already known.
package ingest
