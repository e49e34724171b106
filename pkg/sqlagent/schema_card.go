package sqlagent

// SchemaCard is the compact schema description handed to the SQL generator.
// It names only the tables and columns the agent is ever allowed to read.
const SchemaCard = `Tables (every table carries a user_id column):

transactions(id, user_id, date DATE, posted_datetime TIMESTAMPTZ NULL,
  merchant_name, name, amount DECIMAL, category, pfc_primary,
  payment_channel, pending BOOL)
  -- negative amount = expense, positive = income
  -- canonical date expression: COALESCE(posted_datetime, date::timestamptz)

accounts(id, user_id, name, type, subtype, balance DECIMAL,
  available_balance DECIMAL, currency, is_active BOOL)

holdings_current(id, user_id, account_id, security_id, quantity DECIMAL,
  value DECIMAL, cost_basis DECIMAL)

securities(id, ticker, name, type)

goals(id, user_id, name, target_amount DECIMAL, current_amount DECIMAL,
  target_date DATE, is_active BOOL)

budgets(id, user_id, name, amount DECIMAL, period)
budget_categories(id, budget_id, user_id, category, amount DECIMAL)

manual_assets(id, user_id, name, asset_class, value DECIMAL)
manual_liabilities(id, user_id, name, liability_type, balance DECIMAL,
  interest_rate DECIMAL, minimum_payment DECIMAL)

recurring_income(id, user_id, source, gross_monthly DECIMAL,
  frequency, next_date DATE)`
