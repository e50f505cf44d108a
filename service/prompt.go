package service

import (
	"fmt"
	"strings"

	"github.com/fred1433/CounselAI/model"
)

const lawyerPersona = "Act as an expert US-based employment lawyer."

const outputRules = `**OUTPUT RULES:**
- Respond in clean, well-structured Markdown.
- Begin directly with the contract title as a Markdown heading (for example "# EMPLOYMENT AGREEMENT").
- Do not add any preamble, greeting, commentary, disclaimer or note before or after the contract.
- Do not wrap the document in a code block.`

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func termDescription(req *model.ContractRequest) string {
	switch {
	case req.HasInitialTerm && req.HasNoEndDate:
		return "Both an initial term and no end date were requested; draft an initial term that continues at-will after it ends"
	case req.HasNoEndDate:
		return "At-will employment with no fixed end date"
	case req.HasInitialTerm:
		return "Fixed initial term"
	default:
		return "Not specified; default to at-will employment"
	}
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// BuildFromData renders the prompt used when no template was uploaded. Every
// supplied value appears verbatim; disabled benefits are left out entirely.
func BuildFromData(req *model.ContractRequest) string {
	var sb strings.Builder

	sb.WriteString(lawyerPersona)
	sb.WriteString(" Draft a formal and professional employment agreement from the details below.\n")
	sb.WriteString("The tone must be legal, clear and compliant with standard US employment law.\n\n")

	sb.WriteString("**Parties:**\n")
	fmt.Fprintf(&sb, "- Employer: %s\n", req.EmployerName)
	fmt.Fprintf(&sb, "- Employee: %s\n\n", req.EmployeeName)

	sb.WriteString("**Position:**\n")
	fmt.Fprintf(&sb, "- Job Title: %s\n", req.JobTitle)
	fmt.Fprintf(&sb, "- Job Description: %s\n\n", orDefault(req.JobDescription, "Not provided; describe duties customary for the title"))

	sb.WriteString("**Terms:**\n")
	fmt.Fprintf(&sb, "- Start Date: %s\n", req.StartDate)
	fmt.Fprintf(&sb, "- Term: %s\n", termDescription(req))
	fmt.Fprintf(&sb, "- On-site Presence: %s\n\n", orDefault(req.OnSitePresence, "Not specified"))

	sb.WriteString("**Compensation:**\n")
	fmt.Fprintf(&sb, "- Salary: %s\n\n", req.Salary)

	sb.WriteString("**Benefits:**\n")
	selected := req.Benefits.Selected()
	for _, label := range selected {
		fmt.Fprintf(&sb, "- %s\n", label)
	}
	if req.OtherBenefits != "" {
		fmt.Fprintf(&sb, "- Other: %s\n", req.OtherBenefits)
	}
	if len(selected) == 0 && req.OtherBenefits == "" {
		sb.WriteString("- None beyond those required by law\n")
	}
	sb.WriteString("\n")

	sb.WriteString("**Additional Clauses:**\n")
	fmt.Fprintf(&sb, "- Include NDA: %s\n", yesNo(req.IncludeNda))
	fmt.Fprintf(&sb, "- Include Non-Competition Clause: %s\n", yesNo(req.IncludeNonCompetition))
	fmt.Fprintf(&sb, "- Attorney to be named in the Notice provision: %s\n", yesNo(req.AttyInNotice))
	if req.AttorneyName != "" {
		fmt.Fprintf(&sb, "- Attorney Name: %s\n", req.AttorneyName)
	}
	sb.WriteString("\n")

	if req.Prose != "" {
		sb.WriteString("**Other Specifics (Prose):**\n")
		fmt.Fprintf(&sb, "\"%s\"\n\n", req.Prose)
	}

	sb.WriteString("---\n")
	sb.WriteString("Generate the full text of the employment agreement. Structure it with numbered sections and clauses (1. Position, 2. Compensation, and so on).\n\n")
	sb.WriteString(outputRules)
	sb.WriteString("\n")
	return sb.String()
}

// templateFields lists the scalar fields of req in form order as key/value
// pairs. Empty strings are skipped; booleans are always listed.
func templateFields(req *model.ContractRequest) [][2]string {
	type field struct {
		key   string
		value string
		set   bool
	}
	str := func(key, v string) field { return field{key, v, v != ""} }
	flag := func(key string, v bool) field { return field{key, yesNo(v), true} }

	fields := []field{
		str("employerName", req.EmployerName),
		str("employeeName", req.EmployeeName),
		str("jobTitle", req.JobTitle),
		str("jobDescription", req.JobDescription),
		str("startDate", req.StartDate),
		flag("hasInitialTerm", req.HasInitialTerm),
		flag("hasNoEndDate", req.HasNoEndDate),
		str("onSitePresence", req.OnSitePresence),
		str("salary", req.Salary),
		str("otherBenefits", req.OtherBenefits),
		flag("includeNda", req.IncludeNda),
		flag("includeNonCompetition", req.IncludeNonCompetition),
		flag("attyInNotice", req.AttyInNotice),
		str("attorneyName", req.AttorneyName),
		str("prose", req.Prose),
	}

	var out [][2]string
	for _, f := range fields {
		if f.set {
			out = append(out, [2]string{model.HumanizeKey(f.key), f.value})
		}
	}
	return out
}

// BuildFromTemplate renders the prompt used when a template was uploaded: the
// data as a flat listing plus the extracted template text to clean and fill.
func BuildFromTemplate(req *model.ContractRequest, template string) string {
	var data strings.Builder
	for _, kv := range templateFields(req) {
		fmt.Fprintf(&data, "%s: %s\n", kv[0], kv[1])
	}
	if selected := req.Benefits.Selected(); len(selected) > 0 {
		data.WriteString("Benefits:\n")
		for _, label := range selected {
			fmt.Fprintf(&data, "- %s\n", label)
		}
	}

	var sb strings.Builder
	sb.WriteString(lawyerPersona)
	sb.WriteString(" Your task is to produce a final employment agreement from a raw template and a list of details.\n\n")
	sb.WriteString("**INSTRUCTIONS:**\n")
	sb.WriteString("1. CLEAN THE TEMPLATE: the text was extracted from a document and may contain artifacts such as page numbers (\"Page 1\"), initials blanks (\"Employee's Initials: ____\"), headers or footers. Remove them completely.\n")
	sb.WriteString("2. INTEGRATE DATA: fill the placeholders and relevant sections of the template (for example [EMPLOYER_NAME], [JOB_TITLE], [SALARY]) with the details under 'Data to Integrate'.\n")
	sb.WriteString("3. KEEP THE TEMPLATE'S CLAUSES: do not invent new clauses; only adapt the existing ones to the data.\n\n")
	sb.WriteString("---\n**Data to Integrate:**\n---\n")
	sb.WriteString(data.String())
	sb.WriteString("---\n\n")
	sb.WriteString("---\n**Raw Text Template (to be cleaned and completed):**\n---\n")
	sb.WriteString(template)
	sb.WriteString("\n---\n\n")
	sb.WriteString(outputRules)
	sb.WriteString("\n")
	return sb.String()
}

func speaker(role model.Role) string {
	if role == model.RoleUser {
		return "Client"
	}
	return "Lawyer (You)"
}

// BuildEdit renders the edit prompt for a history whose last message is the
// pending user instruction and which holds at least one assistant version.
func BuildEdit(history model.ChatHistory) string {
	turns := make([]string, 0, len(history))
	for _, msg := range history {
		turns = append(turns, fmt.Sprintf("**%s:**\n%s", speaker(msg.Role), msg.Content))
	}
	base, _ := history.LastAssistant()
	instruction, _ := history.LastUser()

	var sb strings.Builder
	sb.WriteString(lawyerPersona)
	sb.WriteString(" You are in an ongoing conversation with a client to draft an employment agreement.\n")
	sb.WriteString("Below is the complete conversation. The client's last message is a new instruction.\n\n")
	sb.WriteString("**RULES:**\n")
	sb.WriteString("1. Read the entire history to understand how the contract evolved.\n")
	sb.WriteString("2. The \"Lawyer (You)\" messages contain the full contract text at that point. Use the LAST assistant message as the base for this edit.\n")
	sb.WriteString("3. Apply ONLY the LAST client instruction. Do not re-apply earlier instructions or change anything else.\n")
	sb.WriteString("4. Return only the complete updated contract.\n\n")
	sb.WriteString("---\n**Conversation History:**\n---\n")
	sb.WriteString(strings.Join(turns, "\n\n---\n\n"))
	sb.WriteString("\n---\n\n")
	sb.WriteString("**Current contract (base for the edit, last assistant message):**\n")
	sb.WriteString(base.Content)
	sb.WriteString("\n\n**Instruction to apply now (last client message):**\n")
	sb.WriteString(instruction.Content)
	sb.WriteString("\n\n")
	sb.WriteString(outputRules)
	sb.WriteString("\n")
	return sb.String()
}

// BuildDescription renders the "Scope of Duties" prompt for the job
// description helper.
func BuildDescription(req *model.DescriptionRequest) string {
	var sb strings.Builder
	sb.WriteString("Act as a meticulous HR specialist drafting the \"Scope of Duties\" section of a formal employment agreement in English.\n")
	sb.WriteString("Your response must be a single block of text ready to be inserted into a larger document.\n")
	sb.WriteString("- The first line is the title \"Scope of Duties\".\n")
	sb.WriteString("- List the main duties as bullets, each starting with the \"•\" character.\n")
	sb.WriteString("- Keep the tone formal and unambiguous, and describe only the tasks and responsibilities of the role.\n")
	sb.WriteString("- Do not use Markdown formatting such as asterisks or headings.\n\n")
	fmt.Fprintf(&sb, "- Job Title: %s\n", req.JobTitle)
	fmt.Fprintf(&sb, "- Company Name: %s\n", req.CompanyName)
	if req.CompanyBusiness != "" {
		fmt.Fprintf(&sb, "- Company's business: %s\n", req.CompanyBusiness)
	}
	sb.WriteString("\nGenerate the job description now.\n")
	return sb.String()
}
