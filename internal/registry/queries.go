package registry

const userFields = `
  id
  email
  name
  role
  institute {
    id
    name
    approvalStatus
    approvedAt
    rejectionReason
  }`

const meQuery = `query Me {
  me {` + userFields + `
  }
}`

const loginMutation = `mutation Login($email: String!, $password: String!) {
  login(email: $email, password: $password) {
    token
    user {` + userFields + `
    }
  }
}`

const registerUserMutation = `mutation RegisterUser($input: RegisterUserInput!) {
  registerUser(input: $input) {
    token
    user {` + userFields + `
    }
  }
}`

const registerInstituteMutation = `mutation RegisterInstitute($input: RegisterInstituteInput!) {
  registerInstitute(input: $input) {
    id
    name
    approvalStatus
    approvedAt
    rejectionReason
  }
}`

const patientsQuery = `query Patients($search: String, $status: PatientStatus, $limit: Int, $offset: Int) {
  patients(search: $search, status: $status, limit: $limit, offset: $offset) {
    total
    items {
      id
      registryNumber
      name
      dateOfBirth
      sex
      ckdStage
      status
      enrolledAt
    }
  }
}`
